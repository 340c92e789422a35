package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"smsrelay/models"
	"smsrelay/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// deviceEvent is the frame a connected device sends. The event kinds match
// the HTTP endpoints one to one, plus the explicit disconnect signal.
type deviceEvent struct {
	Type      string `json:"type"` // heartbeat, sms, ack, disconnect
	Model     string `json:"model,omitempty"`
	Battery   int    `json:"battery,omitempty"`
	SIM1      string `json:"sim1,omitempty"`
	SIM2      string `json:"sim2,omitempty"`
	From      string `json:"from,omitempty"`
	Body      string `json:"body,omitempty"`
	SIM       int    `json:"sim,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	CommandID string `json:"command_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Result    string `json:"result,omitempty"`
}

type commandFrame struct {
	Type     string           `json:"type"` // always "commands"
	Commands []models.Command `json:"commands"`
}

type deviceConn struct {
	hub  *DeviceHub
	uuid string
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed by the hub; send is never closed
}

func (c *deviceConn) dead() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// DeviceHub tracks devices connected over the push transport, keyed by
// device UUID. Commands queued for a connected device are pushed right
// away instead of waiting for the next poll.
type DeviceHub struct {
	dispatcher *service.RelayDispatcher
	mu         sync.RWMutex
	conns      map[string]*deviceConn
	register   chan *deviceConn
	unregister chan *deviceConn
}

func NewDeviceHub(d *service.RelayDispatcher) *DeviceHub {
	return &DeviceHub{
		dispatcher: d,
		conns:      make(map[string]*deviceConn),
		register:   make(chan *deviceConn),
		unregister: make(chan *deviceConn),
	}
}

func (h *DeviceHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.conns[c.uuid]; ok {
				close(old.done)
			}
			h.conns[c.uuid] = c
			h.mu.Unlock()
			log.Printf("Device %s connected over websocket", c.uuid)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.conns[c.uuid]; ok && cur == c {
				delete(h.conns, c.uuid)
				close(c.done)
			}
			h.mu.Unlock()
			log.Printf("Device %s websocket closed", c.uuid)
		}
	}
}

// Wake drains pending commands for uuid and pushes them if the device is
// connected. Does nothing for polled devices — their queue stays intact.
// Commands that cannot be handed to the connection go back to the front of
// the durable queue: drained-but-undelivered must never be lost.
func (h *DeviceHub) Wake(uuid string) {
	h.mu.RLock()
	c, ok := h.conns[uuid]
	h.mu.RUnlock()
	if !ok || c.dead() {
		return
	}

	cmds, err := h.dispatcher.DrainCommands(uuid)
	if err != nil {
		log.Printf("⚠️ Drain for push to %s failed: %v", uuid, err)
		return
	}
	if len(cmds) == 0 {
		return
	}

	frame, err := json.Marshal(commandFrame{Type: "commands", Commands: cmds})
	if err != nil {
		log.Printf("Failed to marshal command frame: %v", err)
		h.requeue(uuid, cmds)
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
		h.requeue(uuid, cmds)
	default:
		log.Printf("⚠️ Device %s send buffer full", uuid)
		h.requeue(uuid, cmds)
	}
}

func (h *DeviceHub) requeue(uuid string, cmds []models.Command) {
	if err := h.dispatcher.RequeueCommands(uuid, cmds); err != nil {
		log.Printf("🚨 Failed to requeue %d undelivered commands for %s: %v", len(cmds), uuid, err)
		return
	}
	log.Printf("Requeued %d undelivered commands for %s", len(cmds), uuid)
}

// HandleDeviceSocket upgrades a device connection. The device identifies
// itself with a uuid query parameter and then speaks deviceEvent frames.
func HandleDeviceSocket(hub *DeviceHub, c *gin.Context) {
	uuid := c.Query("uuid")
	if uuid == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("missing uuid"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	dc := &deviceConn{
		hub:  hub,
		uuid: uuid,
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}
	hub.register <- dc

	go dc.writePump()
	go dc.readPump()
}

func (c *deviceConn) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error for %s: %v", c.uuid, err)
			}
			// A dropped socket is not a disconnect signal: the device
			// stays registered and ages out through the presence sweep.
			return
		}

		var ev deviceEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Printf("Bad frame from %s: %v", c.uuid, err)
			continue
		}
		c.handleEvent(ev)
		if ev.Type == "disconnect" {
			return
		}
	}
}

func (c *deviceConn) handleEvent(ev deviceEvent) {
	d := c.hub.dispatcher
	switch ev.Type {
	case "heartbeat":
		err := d.Heartbeat(models.HeartbeatRequest{
			UUID: c.uuid, Model: ev.Model, Battery: ev.Battery, SIM1: ev.SIM1, SIM2: ev.SIM2,
		})
		if err != nil {
			log.Printf("Heartbeat from %s rejected: %v", c.uuid, err)
			return
		}
		// Anything queued while the device was away goes out now.
		c.hub.Wake(c.uuid)

	case "sms":
		err := d.InboundSMS(models.InboundSMSRequest{
			UUID: c.uuid, From: ev.From, Body: ev.Body, SIM: ev.SIM,
			Timestamp: ev.Timestamp, Battery: ev.Battery,
		})
		if err != nil {
			log.Printf("SMS report from %s rejected: %v", c.uuid, err)
		}

	case "ack":
		err := d.Ack(models.AckRequest{
			UUID: c.uuid, CommandID: ev.CommandID, Status: ev.Status, Result: ev.Result,
		})
		if err != nil {
			log.Printf("Ack from %s rejected: %v", c.uuid, err)
		}

	case "disconnect":
		d.Disconnect(c.uuid)

	default:
		log.Printf("Unknown event type %q from %s", ev.Type, c.uuid)
	}
}

func (c *deviceConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
