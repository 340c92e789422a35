package service

import (
	"fmt"
	"sync"

	"smsrelay/models"

	"github.com/google/uuid"
)

// Session stages. Free text from an operator is only ever interpreted
// against the stage of that operator's active session.
type Stage int

const (
	StageIdle Stage = iota
	StageAwaitRecipient
	StageAwaitBody
	StageAwaitForwardTarget
)

// Session accumulates one partial command for one operator chat.
type Session struct {
	Stage  Stage
	UUID   string // target device
	SIM    int
	Number string
}

// StepResult is the outcome of feeding one text input to a session.
type StepResult struct {
	Completed bool
	Next      Stage          // valid when !Completed
	UUID      string         // valid when Completed
	Command   models.Command // valid when Completed
}

// SessionStore holds at most one active session per operator chat.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*Session)}
}

// Begin starts a session for chatID, silently discarding any session
// already in progress. Picking a new top-level action mid-flow is the
// documented way to abandon the old one.
func (s *SessionStore) Begin(chatID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := sess
	s.sessions[chatID] = &stored
}

func (s *SessionStore) Active(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[chatID]
	return ok
}

func (s *SessionStore) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
}

// Consume feeds one free-text input to chatID's active session and applies
// the stage transition. The second return is false when there is no active
// session, in which case the text must be treated as a plain menu keyword.
// A completing transition builds the pending command and removes the
// session in the same locked step, so a stale session can never swallow a
// later, unrelated message.
func (s *SessionStore) Consume(chatID int64, text string) (StepResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		return StepResult{}, false, nil
	}

	switch sess.Stage {
	case StageAwaitRecipient:
		sess.Number = text
		sess.Stage = StageAwaitBody
		return StepResult{Next: StageAwaitBody}, true, nil

	case StageAwaitBody:
		res := StepResult{
			Completed: true,
			UUID:      sess.UUID,
			Command: models.Command{
				ID:      uuid.New().String(),
				Type:    models.CommandSendSMS,
				SIM:     sess.SIM,
				Number:  sess.Number,
				Message: text,
			},
		}
		delete(s.sessions, chatID)
		return res, true, nil

	case StageAwaitForwardTarget:
		res := StepResult{
			Completed: true,
			UUID:      sess.UUID,
			Command: models.Command{
				ID:     uuid.New().String(),
				Type:   models.CommandSMSForward,
				Action: models.ForwardOn,
				SIM:    sess.SIM,
				Number: text,
			},
		}
		delete(s.sessions, chatID)
		return res, true, nil

	default:
		// An idle or unknown stage should never have been stored.
		delete(s.sessions, chatID)
		return StepResult{}, false, fmt.Errorf("invalid session stage %d for chat %d", sess.Stage, chatID)
	}
}
