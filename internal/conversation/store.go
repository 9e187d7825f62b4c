package conversation

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// titleMaxLength is the rune length of a synthesized conversation title,
// including the trailing ellipsis when truncated.
const titleMaxLength = 50

// Store is the in-process conversation registry.
//
// Locking discipline: a store-level RWMutex guards the conversation map and
// the user index; each conversation carries its own mutex serializing every
// read-modify sequence on that conversation. Operations on distinct
// conversations never block each other.
//
// Unknown conversation ids are never an error: read operations see an empty
// history, write operations create the conversation on first touch.
type Store struct {
	mu        sync.RWMutex
	convs     map[string]*entry
	userIndex map[string]map[string]struct{} // userID -> set of conversation ids

	logger *slog.Logger
}

// entry is the mutable state of one conversation.
//
// turnMu serializes whole orchestrator turns (Acquire) and is never taken by
// the store's own operations; mu guards the entry's fields for the short
// critical sections inside each operation. Holding turnMu while calling any
// store method is therefore safe.
type entry struct {
	turnMu sync.Mutex
	mu     sync.Mutex

	id            string
	systemMessage string
	messages      []*Message
	lastActivity  time.Time
}

// NewStore creates an empty conversation store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		convs:     make(map[string]*entry),
		userIndex: make(map[string]map[string]struct{}),
		logger:    logger,
	}
}

// getOrCreate returns the entry for id, creating it with the default system
// message on first access.
func (s *Store) getOrCreate(id string) *entry {
	s.mu.RLock()
	e, ok := s.convs[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.convs[id]; ok {
		return e
	}
	e = &entry{
		id:            id,
		systemMessage: DefaultSystemMessage,
		lastActivity:  time.Now().UTC(),
	}
	s.convs[id] = e
	s.logger.Debug("created conversation", "conversation_id", id)
	return e
}

// Acquire takes the per-conversation turn lock and returns its release
// function. The orchestrator holds it across a full "read history, call
// model, append" sequence so concurrent requests for the same conversation
// cannot interleave. The turn lock is distinct from the entry's state mutex,
// so every store operation remains usable while it is held. Distinct
// conversations proceed in parallel.
func (s *Store) Acquire(conversationID string) (release func()) {
	e := s.getOrCreate(conversationID)
	e.turnMu.Lock()
	return e.turnMu.Unlock
}

// GetOrCreateHistory returns a snapshot of the conversation's history,
// creating an empty history with the default system message on first access.
// Never fails.
func (s *Store) GetOrCreateHistory(conversationID string) *History {
	e := s.getOrCreate(conversationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// snapshot copies the entry into a caller-owned History.
// Caller must hold e.mu.
func (e *entry) snapshot() *History {
	msgs := make([]*Message, len(e.messages))
	for i, m := range e.messages {
		msgs[i] = m.clone()
	}
	return &History{
		ConversationID: e.id,
		SystemMessage:  e.systemMessage,
		Messages:       msgs,
	}
}

// AppendMessage appends one message to the conversation's log. A zero
// CreatedAt is filled with the current time; a missing id is generated.
// Safe for concurrent use; messages are never lost or reordered within a
// conversation.
func (s *Store) AppendMessage(conversationID string, msg *Message) {
	if msg == nil {
		return
	}
	stored := msg.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	e := s.getOrCreate(conversationID)
	e.mu.Lock()
	firstUser := stored.Role == RoleUser && !e.hasUserMessage()
	e.messages = append(e.messages, stored)
	e.lastActivity = stored.CreatedAt
	e.mu.Unlock()

	// The user index is derived from the UserId metadata of the first user
	// message of each conversation.
	if firstUser {
		if userID := stored.Metadata[MetaUserID]; userID != "" {
			s.indexUser(userID, conversationID)
		}
	}

	s.logger.Debug("appended message",
		"conversation_id", conversationID,
		"role", stored.Role,
	)
}

// hasUserMessage reports whether the entry already contains a user turn.
// Caller must hold e.mu.
func (e *entry) hasUserMessage() bool {
	for _, m := range e.messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

func (s *Store) indexUser(userID, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userIndex[userID]
	if !ok {
		set = make(map[string]struct{})
		s.userIndex[userID] = set
	}
	set[conversationID] = struct{}{}
}

// SetSystemMessage replaces the conversation's system message without
// touching prior turns.
func (s *Store) SetSystemMessage(conversationID, text string) {
	e := s.getOrCreate(conversationID)
	e.mu.Lock()
	e.systemMessage = text
	e.mu.Unlock()
}

// Reset clears all messages and restores the default system message.
// Idempotent; resetting an unknown conversation registers it empty.
func (s *Store) Reset(conversationID string) {
	e := s.getOrCreate(conversationID)
	e.mu.Lock()
	e.messages = nil
	e.systemMessage = DefaultSystemMessage
	e.lastActivity = time.Now().UTC()
	e.mu.Unlock()
	s.logger.Info("reset conversation", "conversation_id", conversationID)
}

// ResetAll resets every known conversation and returns how many were reset.
// Conversation ids stay registered so diagnostics remain stable.
func (s *Store) ResetAll() int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.convs))
	for id := range s.convs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Reset(id)
	}
	s.logger.Info("reset all conversations", "count", len(ids))
	return len(ids)
}

// ListConversations returns summaries of all conversations ordered by
// last activity, most recent first.
func (s *Store) ListConversations() []*Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.convs))
	for _, e := range s.convs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	summaries := make([]*Summary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, e.summarize())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries
}

// ListConversationsForUser returns summaries of the conversations whose
// first user message carried the given user id, most recent first.
func (s *Store) ListConversationsForUser(userID string) []*Summary {
	s.mu.RLock()
	ids := make([]string, 0)
	for id := range s.userIndex[userID] {
		ids = append(ids, id)
	}
	entries := make([]*entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.convs[id]; ok {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	summaries := make([]*Summary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, e.summarize())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries
}

// summarize builds the listing view of one conversation.
func (e *entry) summarize() *Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := &Summary{
		ID:           e.id,
		Title:        e.title(),
		MessageCount: len(e.messages),
		LastActivity: e.lastActivity,
	}
	if n := len(e.messages); n > 0 {
		sum.LastMessage = e.messages[n-1].Content
		sum.LastActivity = maxTimestamp(e.messages)
	}
	return sum
}

// title synthesizes a display title: the first user message truncated to
// titleMaxLength runes with a trailing ellipsis, or a fallback built from
// the id prefix. Caller must hold e.mu.
func (e *entry) title() string {
	for _, m := range e.messages {
		if m.Role != RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if text == "" {
			break
		}
		runes := []rune(text)
		if len(runes) <= titleMaxLength {
			return text
		}
		return string(runes[:titleMaxLength-3]) + "..."
	}

	prefix := e.id
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "Conversation " + prefix
}

func maxTimestamp(msgs []*Message) time.Time {
	var latest time.Time
	for _, m := range msgs {
		if m.CreatedAt.After(latest) {
			latest = m.CreatedAt
		}
	}
	return latest
}

// DiagnosticsReport returns the per-conversation operational view: message
// counts, distinct user ids seen, and first/last message timestamps.
func (s *Store) DiagnosticsReport() []*Diagnostics {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.convs))
	for _, e := range s.convs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	report := make([]*Diagnostics, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		d := &Diagnostics{
			ID:           e.id,
			MessageCount: len(e.messages),
		}
		seen := make(map[string]struct{})
		for _, m := range e.messages {
			if uid := m.Metadata[MetaUserID]; uid != "" {
				if _, ok := seen[uid]; !ok {
					seen[uid] = struct{}{}
					d.DistinctUsers = append(d.DistinctUsers, uid)
				}
			}
		}
		if n := len(e.messages); n > 0 {
			d.FirstMessage = e.messages[0].CreatedAt
			d.LastMessage = maxTimestamp(e.messages)
		}
		e.mu.Unlock()
		sort.Strings(d.DistinctUsers)
		report = append(report, d)
	}

	sort.Slice(report, func(i, j int) bool { return report[i].ID < report[j].ID })
	return report
}
