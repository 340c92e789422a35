package models

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

type Device struct {
	UUID      string `json:"uuid"`
	Model     string `json:"model"`
	Battery   int    `json:"battery"`
	SIM1      string `json:"sim1"`
	SIM2      string `json:"sim2"`
	Status    string `json:"status"` // online, offline
	LastSeen  int64  `json:"last_seen"`
	BoundChat int64  `json:"bound_chat,omitempty"` // operator chat notified for this device, 0 = admin set
}

type HeartbeatRequest struct {
	UUID    string `json:"uuid"`
	Model   string `json:"model"`
	Battery int    `json:"battery"`
	SIM1    string `json:"sim1"`
	SIM2    string `json:"sim2"`
}

type InboundSMSRequest struct {
	UUID      string `json:"uuid"`
	From      string `json:"from"`
	Body      string `json:"body"`
	SIM       int    `json:"sim"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Battery   int    `json:"battery,omitempty"`
}

type AckRequest struct {
	UUID      string `json:"uuid"`
	CommandID string `json:"command_id"`
	Status    string `json:"status"` // done, failed
	Result    string `json:"result,omitempty"`
}
