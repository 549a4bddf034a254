package turn

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Message is the turn-state event the server pushes over the control
// channel.
type Message struct {
	Event   string `json:"event"`
	Speaker string `json:"speaker"`
}

// Tracker maintains the current speaker from server turn events and
// answers whether this client may send audio. No speaker means an open
// floor.
type Tracker struct {
	localID string
	logger  zerolog.Logger

	mu             sync.RWMutex
	currentSpeaker string

	handlerMu sync.Mutex
	nextID    int
	handlers  []changeSubscription
}

type changeSubscription struct {
	id int
	fn func(speaker string)
}

// NewTracker creates a tracker for the given local client ID.
func NewTracker(localID string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		localID: localID,
		logger:  logger.With().Str("component", "turn").Logger(),
	}
}

// CanSend reports whether the local client holds the floor. True when
// no speaker is assigned or the assigned speaker is the local client.
func (t *Tracker) CanSend() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentSpeaker == "" || t.currentSpeaker == t.localID
}

// CurrentSpeaker returns the active speaker ID, empty when the floor is
// open.
func (t *Tracker) CurrentSpeaker() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentSpeaker
}

// SetSpeaker updates the current speaker and notifies change handlers
// when it actually changes.
func (t *Tracker) SetSpeaker(speaker string) {
	t.mu.Lock()
	if t.currentSpeaker == speaker {
		t.mu.Unlock()
		return
	}
	t.currentSpeaker = speaker
	t.mu.Unlock()

	t.logger.Debug().Str("speaker", speaker).Msg("Turn changed")
	t.dispatchChange(speaker)
}

// HandleMessage feeds a raw control-channel message into the tracker.
// Non-turn and malformed messages are ignored.
func (t *Tracker) HandleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Event != "turn" {
		return
	}
	t.SetSpeaker(msg.Speaker)
}

// OnChange registers a speaker-change handler. Returns an unsubscribe
// func.
func (t *Tracker) OnChange(h func(speaker string)) func() {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, changeSubscription{id, h})
	return func() { t.removeHandler(id) }
}

func (t *Tracker) removeHandler(id int) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	for i, sub := range t.handlers {
		if sub.id == id {
			t.handlers = append(t.handlers[:i], t.handlers[i+1:]...)
			return
		}
	}
}

func (t *Tracker) dispatchChange(speaker string) {
	t.handlerMu.Lock()
	handlers := make([]changeSubscription, len(t.handlers))
	copy(handlers, t.handlers)
	t.handlerMu.Unlock()
	for _, sub := range handlers {
		sub.fn(speaker)
	}
}
