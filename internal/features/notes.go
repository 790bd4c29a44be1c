package features

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiview/bridge/bus"
)

// Note is a saved annotation on a video moment. Persistence to the
// cloud document store happens elsewhere; the hub only keeps the
// session's working set so panels stay in sync.
type Note struct {
	ID        string  `json:"id"`
	VideoID   string  `json:"video_id"`
	Position  float64 `json:"position"`
	Word      string  `json:"word,omitempty"`
	Text      string  `json:"text"`
	CreatedAt int64   `json:"created_at"`
}

// BroadcastFunc fans a message out to every open page context.
type BroadcastFunc func(ctx context.Context, msg bus.Message)

// NoteStore handles SAVE_NOTE and announces each saved note with a
// NOTE_ADDED broadcast.
type NoteStore struct {
	mu        sync.RWMutex
	notes     []Note
	broadcast BroadcastFunc
}

func NewNoteStore(broadcast BroadcastFunc) *NoteStore {
	return &NoteStore{broadcast: broadcast}
}

// Notes returns a snapshot of the working set.
func (s *NoteStore) Notes() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Register wires the SAVE_NOTE handler and returns its unregister func.
func (s *NoteStore) Register(reg *bus.HandlerRegistry) func() {
	return reg.Register(bus.TypeSaveNote, func(ctx context.Context, msg bus.Message) bus.Message {
		var n Note
		if err := bus.DecodePayload(msg, &n); err != nil {
			return bus.Fail("bad note payload: %v", err)
		}
		if n.Text == "" && n.Word == "" {
			return bus.Fail("empty note")
		}
		n.ID = uuid.NewString()
		n.CreatedAt = time.Now().Unix()
		s.mu.Lock()
		s.notes = append(s.notes, n)
		s.mu.Unlock()
		if s.broadcast != nil {
			s.broadcast(ctx, bus.Message{Type: bus.TypeNoteAdded, Payload: n})
		}
		return bus.OK(n)
	})
}
