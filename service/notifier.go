package service

// Notifier delivers text to the operator channel. Delivery is
// fire-and-forget: implementations log transport failures themselves and
// the core never waits on or retries a send.
type Notifier interface {
	// SendTo delivers to one operator chat.
	SendTo(chatID int64, text string)
	// Broadcast delivers to every admin chat.
	Broadcast(text string)
}

// CommandPusher lets the dispatcher nudge a push transport when a command
// is queued for a device that may be connected right now, instead of
// waiting for the next poll.
type CommandPusher interface {
	Wake(uuid string)
}
