package service

import (
	"testing"

	"smsrelay/models"
)

func TestSendSMSFlow(t *testing.T) {
	s := NewSessionStore()
	s.Begin(7, Session{Stage: StageAwaitRecipient, UUID: "d1", SIM: 1})

	res, active, err := s.Consume(7, "+15551234")
	if err != nil || !active {
		t.Fatalf("expected active session, got active=%v err=%v", active, err)
	}
	if res.Completed || res.Next != StageAwaitBody {
		t.Fatalf("expected advance to body stage, got %+v", res)
	}

	res, active, err = s.Consume(7, "hello")
	if err != nil || !active {
		t.Fatalf("expected active session, got active=%v err=%v", active, err)
	}
	if !res.Completed {
		t.Fatal("expected completion")
	}
	cmd := res.Command
	if cmd.Type != models.CommandSendSMS || cmd.SIM != 1 || cmd.Number != "+15551234" || cmd.Message != "hello" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
	if cmd.ID == "" {
		t.Fatal("command must carry an id")
	}
	if res.UUID != "d1" {
		t.Fatalf("expected target d1, got %s", res.UUID)
	}

	// Session is gone: the next text is a plain keyword again.
	if s.Active(7) {
		t.Fatal("session should be cleared on completion")
	}
	if _, active, _ := s.Consume(7, "stray text"); active {
		t.Fatal("completed session must not swallow later messages")
	}
}

func TestForwardFlow(t *testing.T) {
	s := NewSessionStore()
	s.Begin(7, Session{Stage: StageAwaitForwardTarget, UUID: "d1", SIM: 2})

	res, active, err := s.Consume(7, "+15559999")
	if err != nil || !active || !res.Completed {
		t.Fatalf("expected completion, got active=%v err=%v res=%+v", active, err, res)
	}
	cmd := res.Command
	if cmd.Type != models.CommandSMSForward || cmd.Action != models.ForwardOn || cmd.SIM != 2 || cmd.Number != "+15559999" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestFreeTextWithoutSessionIsNoOp(t *testing.T) {
	s := NewSessionStore()
	if _, active, err := s.Consume(7, "hello"); active || err != nil {
		t.Fatalf("expected no active session, got active=%v err=%v", active, err)
	}
}

func TestNewActionAbandonsOldSession(t *testing.T) {
	s := NewSessionStore()
	s.Begin(7, Session{Stage: StageAwaitRecipient, UUID: "d1", SIM: 1})
	// Operator picks a different action mid-flow: last write wins.
	s.Begin(7, Session{Stage: StageAwaitForwardTarget, UUID: "d2", SIM: 2})

	res, _, err := s.Consume(7, "+15550000")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Completed || res.UUID != "d2" || res.Command.Type != models.CommandSMSForward {
		t.Fatalf("expected forward command for d2, got %+v", res)
	}
}

func TestSessionsAreIsolatedPerOperator(t *testing.T) {
	s := NewSessionStore()
	s.Begin(1, Session{Stage: StageAwaitRecipient, UUID: "d1", SIM: 1})
	s.Begin(2, Session{Stage: StageAwaitRecipient, UUID: "d2", SIM: 2})

	s.Consume(1, "+111")
	s.Consume(2, "+222")
	res1, _, _ := s.Consume(1, "for d1")
	res2, _, _ := s.Consume(2, "for d2")

	if res1.Command.Number != "+111" || res1.UUID != "d1" || res1.Command.Message != "for d1" {
		t.Fatalf("operator 1 fields contaminated: %+v", res1)
	}
	if res2.Command.Number != "+222" || res2.UUID != "d2" || res2.Command.SIM != 2 {
		t.Fatalf("operator 2 fields contaminated: %+v", res2)
	}
}

func TestInvalidStageResetsSession(t *testing.T) {
	s := NewSessionStore()
	s.Begin(7, Session{Stage: StageIdle, UUID: "d1"})

	if _, _, err := s.Consume(7, "text"); err == nil {
		t.Fatal("idle stage stored as active session should be rejected")
	}
	if s.Active(7) {
		t.Fatal("invalid session should be cleared")
	}
}
