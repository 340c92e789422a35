package models

// Operator action kinds. The chat transport encodes these as "kind:uuid" or
// "kind:uuid:sim" callback data; inside the core they stay structured.
const (
	ActionDeviceMenu  = "device_menu"
	ActionSendSMS     = "send_sms_menu" // pick a SIM first
	ActionSendSMSSIM  = "send_sms_sim"  // SIM chosen, session starts
	ActionRecentSMS   = "recent_sms"
	ActionForwardMenu = "forward_menu"
	ActionForwardSIM  = "forward_sim"
	ActionForwardOff  = "forward_off"
	ActionDeviceInfo  = "device_info"
	ActionBind        = "bind"
)

type OperatorAction struct {
	Kind string
	UUID string
	SIM  int
}

type Button struct {
	Label  string
	Action OperatorAction
}

// Reply is what the dispatcher hands back to the chat transport for
// rendering. Menu becomes an inline keyboard, Keyboard a persistent reply
// keyboard, Edit asks the transport to replace the triggering menu message.
type Reply struct {
	Text     string
	Menu     [][]Button
	Keyboard [][]string
	Edit     bool
}
