package models

const (
	CommandSendSMS    = "send_sms"
	CommandSMSForward = "sms_forward"
)

// sms_forward actions
const (
	ForwardOn  = "on"
	ForwardOff = "off"
)

// Command is a queued instruction for exactly one device. The flat JSON
// encoding is the wire format device clients already understand.
type Command struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // send_sms, sms_forward
	SIM     int    `json:"sim,omitempty"`
	Number  string `json:"number,omitempty"`
	Message string `json:"message,omitempty"`
	Action  string `json:"action,omitempty"` // sms_forward only: on, off
}

type SMSRecord struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	SIM       int    `json:"sim"`
	Battery   int    `json:"battery,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
