// Package broadcast fans session telemetry out to attached observers.
package broadcast

import (
	"sync"

	"flowscan/internal/config"
	"flowscan/internal/flowscan"
	"flowscan/internal/session"
)

// DefaultQueueSize is the per-observer outbound buffer.
const DefaultQueueSize = 256

// Observer is one attached client. Messages are delivered in send order; the
// queue is closed when the observer is detached or dropped for falling behind.
type Observer struct {
	ID string

	out chan Message
}

// Messages returns the observer's outbound queue.
func (o *Observer) Messages() <-chan Message { return o.out }

// Hub keeps the registry of observers and the last known session snapshot used to
// resynchronize observers as they attach.
type Hub struct {
	logger    flowscan.Logger
	queueSize int

	mu        sync.Mutex
	observers map[*Observer]struct{}
	settings  config.Settings
	status    session.Status
	log       string
	progress  StatusPayload
	end       EndPayload
}

// NewHub creates a hub for an idle session using settings as the current config.
func NewHub(settings config.Settings, logger flowscan.Logger) *Hub {
	return &Hub{
		logger:    logger,
		queueSize: DefaultQueueSize,
		observers: make(map[*Observer]struct{}),
		settings:  settings,
		status:    session.Idle,
		progress:  StatusPayload{Text: []string{}},
	}
}

// SetQueueSize changes the buffer for observers attached afterwards.
func (h *Hub) SetQueueSize(n int) {
	h.mu.Lock()
	h.queueSize = n
	h.mu.Unlock()
}

// Attach registers an observer and queues its resync: init, then the log buffer, then
// the progress snapshot while scanning or the end result after a run.
func (h *Hub) Attach(id string) *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()

	o := &Observer{ID: id, out: make(chan Message, h.queueSize)}
	h.observers[o] = struct{}{}

	h.send(o, Message{Type: TypeInit, Payload: InitPayload{Config: h.settings, Status: h.status}})
	if h.log != "" {
		h.send(o, Message{Type: TypeLogs, Payload: h.log})
	}
	switch h.status {
	case session.Scanning:
		h.send(o, Message{Type: TypeStatus, Payload: h.progressCopy()})
	case session.End:
		h.send(o, Message{Type: TypeEnd, Payload: h.end})
	}

	h.logger.Debug("observer attached", "observer", id, "observers", len(h.observers))
	return o
}

// Detach removes the observer and closes its queue. Detaching twice is a no-op.
func (h *Hub) Detach(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remove(o) {
		h.logger.Debug("observer detached", "observer", o.ID, "observers", len(h.observers))
	}
}

// Reply delivers msg to a single observer.
func (h *Hub) Reply(o *Observer, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send(o, msg)
}

// Len returns the number of attached observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close detaches every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		h.remove(o)
	}
}

// Settings returns the current scan settings.
func (h *Hub) Settings() config.Settings {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settings
}

// SetConfig stores new settings and broadcasts them.
func (h *Hub) SetConfig(settings config.Settings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings
	h.broadcast(Message{Type: TypeSettings, Payload: settings})
}

func (h *Hub) OnStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = session.Scanning
	h.log = ""
	h.progress = StatusPayload{Text: []string{}}
	h.end = EndPayload{}
	h.broadcast(Message{Type: TypeStartScan})
}

func (h *Hub) OnLog(log string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log = log
	h.broadcast(Message{Type: TypeLogs, Payload: log})
}

func (h *Hub) OnStatus(lines []string, percentage int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lines == nil {
		lines = []string{}
	}
	h.progress = StatusPayload{Text: lines, Percentage: percentage}
	h.broadcast(Message{Type: TypeStatus, Payload: h.progressCopy()})
}

func (h *Hub) OnEnd(code int, stopped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = session.End
	h.end = EndPayload{Code: code, Stopped: stopped}
	h.broadcast(Message{Type: TypeEnd, Payload: h.end})
}

// broadcast must be called with h.mu held.
func (h *Hub) broadcast(msg Message) {
	for o := range h.observers {
		h.send(o, msg)
	}
}

// send queues msg without blocking. An observer whose queue is full is dropped; the
// others are unaffected. Must be called with h.mu held.
func (h *Hub) send(o *Observer, msg Message) {
	if _, ok := h.observers[o]; !ok {
		return
	}
	select {
	case o.out <- msg:
	default:
		h.remove(o)
		h.logger.Warn("observer dropped, queue full", "observer", o.ID, "type", msg.Type)
	}
}

func (h *Hub) remove(o *Observer) bool {
	if _, ok := h.observers[o]; !ok {
		return false
	}
	delete(h.observers, o)
	close(o.out)
	return true
}

func (h *Hub) progressCopy() StatusPayload {
	return StatusPayload{Text: append([]string{}, h.progress.Text...), Percentage: h.progress.Percentage}
}

var _ session.Listener = (*Hub)(nil)
