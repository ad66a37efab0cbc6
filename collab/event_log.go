package collab

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

const DefaultEventLogBufferSize = 1024

// EventLog is the append-only record of session lifecycle and room
// events. Background units are the only writers; the poll loop is the
// only reader, draining once per frame. Entries stay in arrival order.
//
// The log is a buffered channel so the append-only, drain-on-poll
// contract is structural. An append never blocks a relay: if the
// consumer stops draining and the buffer fills, the oldest entry is
// dropped to make room.
type EventLog struct {
	entries chan string
}

func NewEventLog() *EventLog {
	return NewEventLogWithSize(DefaultEventLogBufferSize)
}

func NewEventLogWithSize(size int) *EventLog {
	return &EventLog{
		entries: make(chan string, size),
	}
}

func (self *EventLog) Append(format string, a ...any) {
	entry := fmt.Sprintf(format, a...)
	glog.V(1).Infof("[event]%s\n", entry)
	for {
		select {
		case self.entries <- entry:
			return
		default:
		}
		select {
		case dropped := <-self.entries:
			glog.Infof("[event]backpressure, dropped %q\n", dropped)
		default:
		}
	}
}

// Drain returns all pending entries in arrival order without blocking.
// Safe to call concurrently with appends.
func (self *EventLog) Drain() []string {
	var entries []string
	for {
		select {
		case entry := <-self.entries:
			entries = append(entries, entry)
		default:
			return entries
		}
	}
}

// TokenSlot holds the latest issued token. A background mint replaces the
// value; the poll loop takes it if present, at most one transfer per
// frame. The lock is held only for the replace/take itself, never across
// signing or I/O.
type TokenSlot struct {
	mu    sync.Mutex
	token string
	full  bool
}

func NewTokenSlot() *TokenSlot {
	return &TokenSlot{}
}

func (self *TokenSlot) Put(token string) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.token = token
	self.full = true
}

func (self *TokenSlot) Take() (string, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.full {
		return "", false
	}
	token := self.token
	self.token = ""
	self.full = false
	return token, true
}
