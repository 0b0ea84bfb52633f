// ABOUTME: In-memory Surface implementation used by tests and local dry runs
// ABOUTME: Records sends and edits, supports per-call failure injection

package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Edit records one edit applied through the Memory surface.
type Edit struct {
	ID   MessageID
	Text string
}

// Memory is a thread-safe in-memory chat surface. Messages are kept per room
// in delivery order.
type Memory struct {
	Self Identity

	mu       sync.Mutex
	messages map[MessageID]*Message
	rooms    map[string][]MessageID
	files    map[string][]byte
	clock    time.Time

	sent  []*Message
	edits []Edit

	fetchCalls     int
	precedingCalls int

	// Failure injection. Set before use; read under mu.
	SendErr      error
	EditErr      error
	PrecedingErr error
	FetchErr     map[MessageID]error
	FileErr      map[string]error
}

// NewMemory creates an empty in-memory surface for the given bot identity.
func NewMemory(self Identity) *Memory {
	return &Memory{
		Self:     self,
		messages: make(map[MessageID]*Message),
		rooms:    make(map[string][]MessageID),
		files:    make(map[string][]byte),
		clock:    time.Unix(1700000000, 0),
		FetchErr: make(map[MessageID]error),
		FileErr:  make(map[string]error),
	}
}

// Post delivers msg into its room. Missing ids and timestamps are assigned so
// that delivery order matches timestamp order.
func (m *Memory) Post(msg *Message) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postLocked(msg)
	return msg
}

func (m *Memory) postLocked(msg *Message) {
	if msg.ID == "" {
		msg.ID = MessageID(uuid.NewString())
	}
	if msg.Timestamp.IsZero() {
		m.clock = m.clock.Add(time.Second)
		msg.Timestamp = m.clock
	}
	m.messages[msg.ID] = msg
	m.rooms[msg.RoomID] = append(m.rooms[msg.RoomID], msg.ID)
}

// AddFile registers attachment bytes served by FetchBytes and FetchText.
func (m *Memory) AddFile(url string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[url] = data
}

// SendReply implements Surface.
func (m *Memory) SendReply(ctx context.Context, trigger *Message, text string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return nil, m.SendErr
	}
	reply := &Message{
		RoomID:    trigger.RoomID,
		ThreadID:  trigger.ThreadID,
		AuthorID:  m.Self.UserID,
		Text:      text,
		Type:      TypeReply,
		ReplyTo:   trigger.ID,
		Reference: trigger,
	}
	m.postLocked(reply)
	m.sent = append(m.sent, reply)
	return reply, nil
}

// Edit implements Surface.
func (m *Memory) Edit(ctx context.Context, msg *Message, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	stored, ok := m.messages[msg.ID]
	if !ok {
		return fmt.Errorf("editing %s: %w", msg.ID, ErrNotFound)
	}
	edited := *stored
	edited.Text = text
	m.messages[msg.ID] = &edited
	m.edits = append(m.edits, Edit{ID: msg.ID, Text: text})
	return nil
}

// FetchMessage implements Surface.
func (m *Memory) FetchMessage(ctx context.Context, roomID string, id MessageID) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if err := m.FetchErr[id]; err != nil {
		return nil, err
	}
	msg, ok := m.messages[id]
	if !ok || msg.RoomID != roomID {
		return nil, ErrNotFound
	}
	return msg, nil
}

// FetchPreceding implements Surface.
func (m *Memory) FetchPreceding(ctx context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.precedingCalls++
	if m.PrecedingErr != nil {
		return nil, m.PrecedingErr
	}
	ids := m.rooms[msg.RoomID]
	for i, id := range ids {
		if id == msg.ID {
			if i == 0 {
				return nil, nil
			}
			return m.messages[ids[i-1]], nil
		}
	}
	return nil, ErrNotFound
}

// FetchBytes serves registered attachment data.
func (m *Memory) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FileErr[url]; err != nil {
		return nil, err
	}
	data, ok := m.files[url]
	if !ok {
		return nil, fmt.Errorf("fetching %s: %w", url, ErrNotFound)
	}
	return data, nil
}

// FetchText serves registered attachment data as text.
func (m *Memory) FetchText(ctx context.Context, url string) (string, error) {
	data, err := m.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Sent returns the messages sent through SendReply, in order.
func (m *Memory) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Message(nil), m.sent...)
}

// Edits returns the edits applied, in order.
func (m *Memory) Edits() []Edit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Edit(nil), m.edits...)
}

// FetchCalls returns how many times FetchMessage was called.
func (m *Memory) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// PrecedingCalls returns how many times FetchPreceding was called.
func (m *Memory) PrecedingCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.precedingCalls
}
