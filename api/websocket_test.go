package api

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"smsrelay/config"
	"smsrelay/models"
	"smsrelay/service"
)

const testAdminChat int64 = 1

func newTestHub(t *testing.T) (*service.RelayDispatcher, *DeviceHub) {
	t.Helper()

	dir := t.TempDir()
	queue, err := service.NewCommandQueue(filepath.Join(dir, "commandQueue.json"))
	if err != nil {
		t.Fatalf("queue init failed: %v", err)
	}
	db, err := config.InitDatabase(filepath.Join(dir, "inbox.db"))
	if err != nil {
		t.Fatalf("inbox init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	d := service.NewRelayDispatcher(
		service.NewDeviceRegistry(), queue, service.NewSessionStore(), service.NewInboxStore(db),
		[]int64{testAdminChat}, true,
	)
	return d, NewDeviceHub(d)
}

// queueOne puts one sms_forward-off command on d1's queue without going
// through the pusher.
func queueOne(t *testing.T, d *service.RelayDispatcher, sim int) {
	t.Helper()
	d.Heartbeat(models.HeartbeatRequest{UUID: "d1", Model: "Pixel"})
	reply := d.HandleAction(testAdminChat, models.OperatorAction{Kind: models.ActionForwardOff, UUID: "d1", SIM: sim})
	if !strings.Contains(reply.Text, "disabled") {
		t.Fatalf("command not queued: %q", reply.Text)
	}
}

func TestWakeOnTornDownConnKeepsCommandsQueued(t *testing.T) {
	d, hub := newTestHub(t)
	queueOne(t, d, 1)

	// Exactly the state register/unregister leave behind when a device
	// reconnects or drops mid-push: the conn is marked done.
	dc := &deviceConn{hub: hub, uuid: "d1", send: make(chan []byte, 16), done: make(chan struct{})}
	hub.conns["d1"] = dc
	close(dc.done)

	hub.Wake("d1")

	cmds, err := d.DrainCommands("d1")
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("command lost on dead-conn wake: got %d commands", len(cmds))
	}
}

func TestWakeRequeuesWhenSendBufferFull(t *testing.T) {
	d, hub := newTestHub(t)
	queueOne(t, d, 1)
	queueOne(t, d, 2)

	// Unbuffered send channel with no writePump: the push cannot be
	// handed over.
	dc := &deviceConn{hub: hub, uuid: "d1", send: make(chan []byte), done: make(chan struct{})}
	hub.conns["d1"] = dc

	hub.Wake("d1")

	cmds, err := d.DrainCommands("d1")
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("expected both commands requeued, got %d", len(cmds))
	}
	if cmds[0].SIM != 1 || cmds[1].SIM != 2 {
		t.Fatalf("requeue broke FIFO order: %+v", cmds)
	}
}

func TestWakePushesToLiveConn(t *testing.T) {
	d, hub := newTestHub(t)
	queueOne(t, d, 1)

	dc := &deviceConn{hub: hub, uuid: "d1", send: make(chan []byte, 16), done: make(chan struct{})}
	hub.conns["d1"] = dc

	hub.Wake("d1")

	select {
	case raw := <-dc.send:
		var frame commandFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if frame.Type != "commands" || len(frame.Commands) != 1 {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	default:
		t.Fatal("no frame pushed to live connection")
	}

	cmds, _ := d.DrainCommands("d1")
	if len(cmds) != 0 {
		t.Fatalf("pushed commands still queued: %d", len(cmds))
	}
}
