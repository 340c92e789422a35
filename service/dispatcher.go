package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smsrelay/models"

	"github.com/google/uuid"
)

const recentSMSLimit = 20

// RelayDispatcher binds the registry, command queue, operator sessions and
// inbox to the two external boundaries. State mutation happens in the
// component stores; the dispatcher decides which mutation an event maps to
// and which notification, if any, goes out afterwards. Notifications never
// roll back a committed state change.
type RelayDispatcher struct {
	registry *DeviceRegistry
	queue    *CommandQueue
	sessions *SessionStore
	inbox    *InboxStore

	notifier Notifier
	pusher   CommandPusher

	adminChats    []int64
	notifyUnbound bool
}

func NewRelayDispatcher(registry *DeviceRegistry, queue *CommandQueue, sessions *SessionStore, inbox *InboxStore, adminChats []int64, notifyUnbound bool) *RelayDispatcher {
	return &RelayDispatcher{
		registry:      registry,
		queue:         queue,
		sessions:      sessions,
		inbox:         inbox,
		adminChats:    adminChats,
		notifyUnbound: notifyUnbound,
	}
}

func (d *RelayDispatcher) SetNotifier(n Notifier) { d.notifier = n }
func (d *RelayDispatcher) SetPusher(p CommandPusher) { d.pusher = p }

// ---- Device boundary ----

// Heartbeat registers or refreshes a device. A first registration or an
// offline→online flip produces exactly one connected notification.
func (d *RelayDispatcher) Heartbeat(req models.HeartbeatRequest) error {
	if req.UUID == "" {
		return fmt.Errorf("%w: uuid", ErrValidation)
	}

	dev, transitioned := d.registry.Upsert(req)
	if transitioned {
		log.Printf("📲 Device %s (%s) connected", dev.UUID, dev.Model)
		d.notifyTransition(dev, "📲 Device Connected\n"+FormatDevice(dev))
	}
	return nil
}

// DrainCommands returns and clears the device's pending commands.
func (d *RelayDispatcher) DrainCommands(devUUID string) ([]models.Command, error) {
	if devUUID == "" {
		return nil, fmt.Errorf("%w: uuid", ErrValidation)
	}
	return d.queue.Drain(devUUID)
}

// RequeueCommands puts drained-but-undelivered commands back at the front
// of the device's queue. The push transport uses this when a connection
// dies between drain and hand-over.
func (d *RelayDispatcher) RequeueCommands(devUUID string, cmds []models.Command) error {
	return d.queue.Requeue(devUUID, cmds)
}

// InboundSMS stores a reported message and notifies the device's operator
// chat. Reports from devices that never registered are still relayed under
// a placeholder name, matching what existing device clients expect.
func (d *RelayDispatcher) InboundSMS(req models.InboundSMSRequest) error {
	if req.UUID == "" || req.From == "" || req.Body == "" {
		return fmt.Errorf("%w: uuid, from, body", ErrValidation)
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	dev, known := d.registry.Get(req.UUID)
	if !known {
		dev = models.Device{UUID: req.UUID, Model: req.UUID}
	}

	rec := models.SMSRecord{
		From:      req.From,
		Body:      req.Body,
		SIM:       req.SIM,
		Battery:   req.Battery,
		Timestamp: ts,
	}
	if err := d.inbox.Save(req.UUID, rec); err != nil {
		// History is best-effort; the live notification still goes out.
		log.Printf("⚠️ Failed to store SMS for %s: %v", req.UUID, err)
	}

	d.notifyDevice(dev, fmt.Sprintf(
		"📱 NEW SMS (%s)\nFrom: %s\nSIM: %d\nTime: %s\nMessage:\n%s",
		deviceName(dev), req.From, req.SIM,
		time.UnixMilli(ts).Format("15:04:05"), req.Body,
	))
	return nil
}

// Ack reports a command's completion back to the operator chat.
func (d *RelayDispatcher) Ack(req models.AckRequest) error {
	if req.UUID == "" || req.CommandID == "" {
		return fmt.Errorf("%w: uuid, command_id", ErrValidation)
	}

	dev, known := d.registry.Get(req.UUID)
	if !known {
		dev = models.Device{UUID: req.UUID, Model: req.UUID}
	}

	marker := "✅"
	if req.Status == "failed" {
		marker = "❌"
	}
	text := fmt.Sprintf("%s Command %s on %s: %s", marker, req.CommandID, deviceName(dev), req.Status)
	if req.Result != "" {
		text += "\n" + req.Result
	}
	d.notifyDevice(dev, text)
	return nil
}

// Disconnect removes a device after an explicit disconnect signal from the
// push transport. Poll-based devices are never removed, they only age out.
func (d *RelayDispatcher) Disconnect(devUUID string) {
	dev, ok := d.registry.Remove(devUUID)
	if !ok {
		return
	}
	log.Printf("Device %s (%s) disconnected", dev.UUID, dev.Model)
	d.notifyTransition(dev, fmt.Sprintf("🔌 Device Disconnected\n📱 %s", deviceName(dev)))
}

// DeviceWentOffline is the presence monitor's transition callback.
func (d *RelayDispatcher) DeviceWentOffline(dev models.Device) {
	d.notifyTransition(dev, "🔴 Device Offline\n"+FormatDevice(dev))
}

// ListDevices returns every known device in registration order.
func (d *RelayDispatcher) ListDevices() []models.Device {
	return d.registry.All()
}

// StatusDigest renders the periodic all-devices status block, or "" when
// no devices are known.
func (d *RelayDispatcher) StatusDigest() string {
	devices := d.registry.All()
	if len(devices) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("📡 Device Status Update\n\n")
	for _, dev := range devices {
		b.WriteString(FormatDevice(dev))
		b.WriteString(fmt.Sprintf("\nUUID: %s\n\n", dev.UUID))
	}
	return b.String()
}

// ---- Operator boundary ----

const (
	deniedReply   = "❌ Permission denied."
	notFoundReply = "❌ Device not found"
)

// errorReply maps the error taxonomy to the fixed operator-visible texts.
func errorReply(err error) models.Reply {
	switch {
	case errors.Is(err, ErrDenied):
		return models.Reply{Text: deniedReply}
	case errors.Is(err, ErrNotFound):
		return models.Reply{Text: notFoundReply}
	default:
		return models.Reply{Text: "⚠️ " + err.Error()}
	}
}

// HandleText processes free text from an operator chat. With an active
// session the text feeds the current stage; otherwise it is matched
// against the plain menu keywords and anything unrecognized is ignored.
func (d *RelayDispatcher) HandleText(chatID int64, text string) models.Reply {
	if !d.isAdmin(chatID) {
		return errorReply(fmt.Errorf("%w: chat %d", ErrDenied, chatID))
	}

	text = strings.TrimSpace(text)

	res, active, err := d.sessions.Consume(chatID, text)
	if err != nil {
		log.Printf("⚠️ %v", err)
		return models.Reply{Text: "⚠️ Session reset, pick the device again."}
	}
	if active {
		if !res.Completed {
			return models.Reply{Text: stagePrompt(res.Next)}
		}
		return d.completeSession(chatID, res)
	}

	switch text {
	case "/start":
		return models.Reply{
			Text:     "✅ Admin Panel Ready",
			Keyboard: [][]string{{"Connected devices"}},
		}
	case "Connected devices", "/devices":
		return d.deviceListReply()
	default:
		return models.Reply{}
	}
}

// HandleAction processes a structured menu selection.
func (d *RelayDispatcher) HandleAction(chatID int64, action models.OperatorAction) models.Reply {
	if !d.isAdmin(chatID) {
		return errorReply(fmt.Errorf("%w: chat %d", ErrDenied, chatID))
	}

	dev, ok := d.registry.Get(action.UUID)
	if !ok {
		return errorReply(fmt.Errorf("%w: %s", ErrNotFound, action.UUID))
	}

	switch action.Kind {
	case models.ActionDeviceMenu:
		return models.Reply{
			Text: fmt.Sprintf("📱 %s Selected\nChoose an action:", deviceName(dev)),
			Edit: true,
			Menu: [][]models.Button{
				{{Label: "📤 Send SMS", Action: models.OperatorAction{Kind: models.ActionSendSMS, UUID: dev.UUID}}},
				{{Label: "📥 Recent SMS", Action: models.OperatorAction{Kind: models.ActionRecentSMS, UUID: dev.UUID}}},
				{{Label: "📡 SMS Forward", Action: models.OperatorAction{Kind: models.ActionForwardMenu, UUID: dev.UUID}}},
				{{Label: "ℹ️ Device info", Action: models.OperatorAction{Kind: models.ActionDeviceInfo, UUID: dev.UUID}}},
				{{Label: "🔔 Notify me", Action: models.OperatorAction{Kind: models.ActionBind, UUID: dev.UUID}}},
			},
		}

	case models.ActionSendSMS:
		return models.Reply{
			Text: fmt.Sprintf("Choose SIM for %s:", deviceName(dev)),
			Edit: true,
			Menu: [][]models.Button{{
				{Label: "SIM1", Action: models.OperatorAction{Kind: models.ActionSendSMSSIM, UUID: dev.UUID, SIM: 1}},
				{Label: "SIM2", Action: models.OperatorAction{Kind: models.ActionSendSMSSIM, UUID: dev.UUID, SIM: 2}},
			}},
		}

	case models.ActionSendSMSSIM:
		d.sessions.Begin(chatID, Session{Stage: StageAwaitRecipient, UUID: dev.UUID, SIM: action.SIM})
		return models.Reply{Text: "📞 Enter recipient number:"}

	case models.ActionRecentSMS:
		return d.recentSMSReply(dev)

	case models.ActionForwardMenu:
		return models.Reply{
			Text: fmt.Sprintf("Choose SIM for forward (%s):", deviceName(dev)),
			Edit: true,
			Menu: [][]models.Button{
				{
					{Label: "SIM1", Action: models.OperatorAction{Kind: models.ActionForwardSIM, UUID: dev.UUID, SIM: 1}},
					{Label: "SIM2", Action: models.OperatorAction{Kind: models.ActionForwardSIM, UUID: dev.UUID, SIM: 2}},
				},
				{
					{Label: "🚫 Off SIM1", Action: models.OperatorAction{Kind: models.ActionForwardOff, UUID: dev.UUID, SIM: 1}},
					{Label: "🚫 Off SIM2", Action: models.OperatorAction{Kind: models.ActionForwardOff, UUID: dev.UUID, SIM: 2}},
				},
			},
		}

	case models.ActionForwardSIM:
		d.sessions.Begin(chatID, Session{Stage: StageAwaitForwardTarget, UUID: dev.UUID, SIM: action.SIM})
		return models.Reply{Text: fmt.Sprintf("📡 Enter number to forward SMS (SIM%d):", action.SIM)}

	case models.ActionForwardOff:
		cmd := models.Command{
			ID:     uuid.New().String(),
			Type:   models.CommandSMSForward,
			Action: models.ForwardOff,
			SIM:    action.SIM,
		}
		if err := d.queueCommand(dev.UUID, cmd); err != nil {
			log.Printf("⚠️ %v", err)
			return models.Reply{Text: "⚠️ Failed to queue command, try again."}
		}
		return models.Reply{Text: fmt.Sprintf("✅ SMS forward disabled for SIM%d", action.SIM)}

	case models.ActionDeviceInfo:
		return models.Reply{Text: fmt.Sprintf("%s\nUUID: %s\nPending commands: %d",
			FormatDevice(dev), dev.UUID, d.queue.PendingCount(dev.UUID))}

	case models.ActionBind:
		d.registry.Bind(dev.UUID, chatID)
		return models.Reply{Text: fmt.Sprintf("🔔 Notifications for %s now come to this chat.", deviceName(dev))}

	default:
		return models.Reply{Text: "❌ Unknown action"}
	}
}

// completeSession queues the command a finished session produced and
// confirms it. The session itself is already gone: it was cleared in the
// same step that completed it.
func (d *RelayDispatcher) completeSession(chatID int64, res StepResult) models.Reply {
	if err := d.queueCommand(res.UUID, res.Command); err != nil {
		log.Printf("⚠️ %v", err)
		return models.Reply{Text: "⚠️ Failed to queue command, try again."}
	}

	dev, _ := d.registry.Get(res.UUID)
	cmd := res.Command
	switch cmd.Type {
	case models.CommandSendSMS:
		return models.Reply{Text: fmt.Sprintf(
			"✅ SMS QUEUED\nDevice: %s\nSIM%d → %s\n✉️ Message: %s",
			deviceName(dev), cmd.SIM, cmd.Number, cmd.Message)}
	case models.CommandSMSForward:
		return models.Reply{Text: fmt.Sprintf(
			"✅ SMS Forward enabled for SIM%d → %s", cmd.SIM, cmd.Number)}
	default:
		return models.Reply{Text: "✅ Command queued"}
	}
}

func (d *RelayDispatcher) queueCommand(devUUID string, cmd models.Command) error {
	if err := d.queue.Enqueue(devUUID, cmd); err != nil {
		return err
	}
	if d.pusher != nil {
		d.pusher.Wake(devUUID)
	}
	return nil
}

func (d *RelayDispatcher) deviceListReply() models.Reply {
	devices := d.registry.All()
	if len(devices) == 0 {
		return models.Reply{Text: "🚫 No devices connected."}
	}
	menu := make([][]models.Button, 0, len(devices))
	for _, dev := range devices {
		menu = append(menu, []models.Button{{
			Label:  deviceName(dev),
			Action: models.OperatorAction{Kind: models.ActionDeviceMenu, UUID: dev.UUID},
		}})
	}
	return models.Reply{Text: "📱 Select a device:", Menu: menu}
}

func (d *RelayDispatcher) recentSMSReply(dev models.Device) models.Reply {
	records, err := d.inbox.Recent(dev.UUID, recentSMSLimit)
	if err != nil {
		log.Printf("⚠️ Failed to load SMS history for %s: %v", dev.UUID, err)
		return models.Reply{Text: "⚠️ Failed to load SMS history."}
	}
	if len(records) == 0 {
		return models.Reply{Text: "🚫 No SMS history."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📜 Last %d SMS for %s\n", len(records), deviceName(dev))
	for _, r := range records {
		fmt.Fprintf(&b, "\nFrom: %s\nMessage: %s\nSIM: %d\nTime: %s\n---------------------\n",
			r.From, r.Body, r.SIM, time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04:05"))
	}
	return models.Reply{Text: b.String()}
}

// ---- Notification routing ----

// notifyDevice routes an event notification to the device's bound chat,
// falling back to the admin set.
func (d *RelayDispatcher) notifyDevice(dev models.Device, text string) {
	if d.notifier == nil {
		log.Printf("Notification (no transport): %s", firstLine(text))
		return
	}
	if dev.BoundChat != 0 {
		d.notifier.SendTo(dev.BoundChat, text)
		return
	}
	d.notifier.Broadcast(text)
}

// notifyTransition is notifyDevice for presence transitions, where
// announcing unbound devices to the admin set is a configuration choice.
func (d *RelayDispatcher) notifyTransition(dev models.Device, text string) {
	if dev.BoundChat == 0 && !d.notifyUnbound {
		return
	}
	d.notifyDevice(dev, text)
}

func (d *RelayDispatcher) isAdmin(chatID int64) bool {
	for _, id := range d.adminChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func stagePrompt(stage Stage) string {
	switch stage {
	case StageAwaitRecipient:
		return "📞 Enter recipient number:"
	case StageAwaitBody:
		return "✍️ Enter SMS message text:"
	case StageAwaitForwardTarget:
		return "📡 Enter forward target number:"
	default:
		return ""
	}
}

// FormatDevice renders the standard device status block.
func FormatDevice(dev models.Device) string {
	status := "🔴 Offline"
	if dev.Status == models.StatusOnline {
		status = "🟢 Online"
	}
	return fmt.Sprintf("📱 %s\n🪪 SIM1: %s | SIM2: %s\n🔋 %d%%\n🌐 %s",
		deviceName(dev), orNA(dev.SIM1), orNA(dev.SIM2), dev.Battery, status)
}

func deviceName(dev models.Device) string {
	if dev.Model != "" {
		return dev.Model
	}
	return dev.UUID
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
