package service

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"smsrelay/models"
)

// CommandQueue holds pending commands per device, persisted as a single
// JSON document so commands survive a process restart. Every mutation
// rewrites the whole file through a temp-file rename, so an interrupted
// write can never leave a document the loader cannot parse.
type CommandQueue struct {
	mu      sync.Mutex
	path    string
	pending map[string][]models.Command
}

// NewCommandQueue loads the queue file at path, creating it on first run.
// A file that fails to parse is logged and treated as empty: new commands
// matter more than resurrecting possibly corrupt old ones.
func NewCommandQueue(path string) (*CommandQueue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	q := &CommandQueue{
		path:    path,
		pending: make(map[string][]models.Command),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	if err := json.Unmarshal(data, &q.pending); err != nil {
		log.Printf("⚠️ Queue file %s is corrupt, starting empty: %v", path, err)
		q.pending = make(map[string][]models.Command)
	}
	return q, nil
}

// Enqueue appends a command to the device's pending list and persists
// before returning. A persistence failure is returned to the caller and
// leaves the in-memory queue unchanged — the command is never silently
// accepted while unpersisted.
func (q *CommandQueue) Enqueue(uuid string, cmd models.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending[uuid] = append(q.pending[uuid], cmd)
	if err := q.persistLocked(); err != nil {
		list := q.pending[uuid]
		q.pending[uuid] = list[:len(list)-1]
		return fmt.Errorf("persist command queue: %w", err)
	}
	return nil
}

// Drain atomically returns and clears the device's pending list, in FIFO
// order. Concurrent drains for the same device serialize on the queue
// lock, so the second caller always observes an empty list.
func (q *CommandQueue) Drain(uuid string) ([]models.Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds, ok := q.pending[uuid]
	if !ok || len(cmds) == 0 {
		return []models.Command{}, nil
	}

	delete(q.pending, uuid)
	if err := q.persistLocked(); err != nil {
		// Not handed out: put them back so nothing is lost.
		q.pending[uuid] = cmds
		return nil, fmt.Errorf("persist command queue: %w", err)
	}
	return cmds, nil
}

// Requeue returns drained-but-undelivered commands to the front of a
// device's list, ahead of anything enqueued since they were drained, so
// FIFO order holds across a failed delivery attempt.
func (q *CommandQueue) Requeue(uuid string, cmds []models.Command) error {
	if len(cmds) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.pending[uuid]
	restored := make([]models.Command, 0, len(cmds)+len(prev))
	restored = append(restored, cmds...)
	restored = append(restored, prev...)
	q.pending[uuid] = restored
	if err := q.persistLocked(); err != nil {
		q.pending[uuid] = prev
		return fmt.Errorf("persist command queue: %w", err)
	}
	return nil
}

// PendingCount reports how many commands wait for a device.
func (q *CommandQueue) PendingCount(uuid string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[uuid])
}

func (q *CommandQueue) persistLocked() error {
	data, err := json.MarshalIndent(q.pending, "", "  ")
	if err != nil {
		return err
	}

	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}
