package views

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/webview"
)

// Frame type tags on a view's event stream.
const (
	FrameEvent   = "event"
	FrameState   = "state"
	FrameMessage = "message"
	FrameHandoff = "handoff"
)

// Handoff carries a main-frame target the allow-list refused. The daemon has
// no desktop to open it on; the controlling client owns that decision.
type Handoff struct {
	URL string `json:"url"`
}

// Frame is one unit on a view's stream: a lifecycle event, a navigation
// state snapshot, a page-to-host bridge message, or an external-open
// handoff. Exactly one pointer field is set, matching Type.
type Frame struct {
	Type    string                   `json:"type"`
	Event   *webview.LoadEvent       `json:"event,omitempty"`
	State   *webview.NavigationState `json:"state,omitempty"`
	Message *webview.MessageEvent    `json:"message,omitempty"`
	Handoff *Handoff                 `json:"handoff,omitempty"`
}

// subscriberBuffer sizes each subscriber channel. Slow consumers lose
// frames rather than stalling view callbacks.
const subscriberBuffer = 64

// hub fans view frames out to stream subscribers.
type hub struct {
	log *logging.Logger

	mu     sync.Mutex
	subs   map[int]chan Frame
	nextID int
	closed bool
}

func newHub(log *logging.Logger) *hub {
	return &hub{
		log:  log,
		subs: make(map[int]chan Frame),
	}
}

// subscribe registers a consumer. The cancel func is idempotent and closes
// the returned channel.
func (h *hub) subscribe() (<-chan Frame, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Frame)
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	ch := make(chan Frame, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish delivers to every subscriber without blocking; a full subscriber
// drops the frame.
func (h *hub) publish(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- f:
		default:
			h.log.Debug("stream subscriber lagging, frame dropped", zap.Int("subscriber", id))
		}
	}
}

// count reports active subscribers.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// close terminates every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
