package bot

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"smsrelay/models"
	"smsrelay/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the Telegram binding for the operator channel. It renders the
// dispatcher's structured replies as messages and keyboards, and feeds
// messages and callback queries back in as text and structured actions.
// It also implements service.Notifier.
type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *service.RelayDispatcher
	admins     []int64

	mu        sync.Mutex
	statusMsg map[int64]int // chat → message id of the live status digest

	done chan struct{}
}

func New(token string, d *service.RelayDispatcher, admins []int64) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("🤖 Bot started as @%s", api.Self.UserName)

	return &Bot{
		api:        api,
		dispatcher: d,
		admins:     admins,
		statusMsg:  make(map[int64]int),
		done:       make(chan struct{}),
	}, nil
}

// Run consumes updates until Stop is called.
func (b *Bot) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	for update := range b.api.GetUpdatesChan(u) {
		switch {
		case update.Message != nil:
			b.handleMessage(update.Message)
		case update.CallbackQuery != nil:
			b.handleCallback(update.CallbackQuery)
		}
	}
}

func (b *Bot) Stop() {
	close(b.done)
	b.api.StopReceivingUpdates()
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	reply := b.dispatcher.HandleText(msg.Chat.ID, msg.Text)
	b.sendReply(msg.Chat.ID, 0, reply)
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	// Stop the client spinner whatever happens next.
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	action, ok := parseAction(cb.Data)
	if !ok {
		log.Printf("Unparseable callback data %q", cb.Data)
		return
	}

	chatID := cb.Message.Chat.ID
	reply := b.dispatcher.HandleAction(chatID, action)
	b.sendReply(chatID, cb.Message.MessageID, reply)
}

// sendReply renders one dispatcher reply. msgID is the menu message a
// callback came from, used when the reply asks to edit in place.
func (b *Bot) sendReply(chatID int64, msgID int, r models.Reply) {
	if r.Text == "" {
		return
	}

	if r.Edit && msgID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, r.Text, renderMenu(r.Menu))
		if _, err := b.api.Send(edit); err != nil {
			log.Printf("Failed to edit message in chat %d: %v", chatID, err)
		}
		return
	}

	msg := tgbotapi.NewMessage(chatID, r.Text)
	if len(r.Menu) > 0 {
		msg.ReplyMarkup = renderMenu(r.Menu)
	} else if len(r.Keyboard) > 0 {
		msg.ReplyMarkup = renderKeyboard(r.Keyboard)
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send to chat %d: %v", chatID, err)
	}
}

// ---- service.Notifier ----

func (b *Bot) SendTo(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("Failed to notify chat %d: %v", chatID, err)
	}
}

func (b *Bot) Broadcast(text string) {
	for _, id := range b.admins {
		b.SendTo(id, text)
	}
}

// RunStatusDigest republishes the all-devices status block to every admin
// chat on each tick, editing the previous digest message when it still
// exists so the chat is not flooded.
func (b *Bot) RunStatusDigest(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			digest := b.dispatcher.StatusDigest()
			if digest == "" {
				continue
			}
			for _, id := range b.admins {
				b.publishDigest(id, digest)
			}
		}
	}
}

func (b *Bot) publishDigest(chatID int64, digest string) {
	b.mu.Lock()
	msgID, ok := b.statusMsg[chatID]
	b.mu.Unlock()

	if ok {
		edit := tgbotapi.NewEditMessageText(chatID, msgID, digest)
		if _, err := b.api.Send(edit); err == nil {
			return
		}
		// Edit failed (message deleted or too old): fall through to a
		// fresh message.
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, digest))
	if err != nil {
		log.Printf("Failed to publish status digest to %d: %v", chatID, err)
		return
	}
	b.mu.Lock()
	b.statusMsg[chatID] = sent.MessageID
	b.mu.Unlock()
}

// ---- callback wire encoding ----

// Callback data is "kind:uuid" or "kind:uuid:sim". This delimited form is
// kept for compatibility with existing chats; it exists only here, the
// core sees structured actions.

func encodeAction(a models.OperatorAction) string {
	data := a.Kind + ":" + a.UUID
	if a.SIM > 0 {
		data += ":" + strconv.Itoa(a.SIM)
	}
	return data
}

func parseAction(data string) (models.OperatorAction, bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return models.OperatorAction{}, false
	}
	action := models.OperatorAction{Kind: parts[0], UUID: parts[1]}
	if len(parts) > 2 {
		sim, err := strconv.Atoi(parts[2])
		if err != nil {
			return models.OperatorAction{}, false
		}
		action.SIM = sim
	}
	return action, true
}

func renderMenu(menu [][]models.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, row := range menu {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Label, encodeAction(btn.Action)))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func renderKeyboard(keyboard [][]string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}
