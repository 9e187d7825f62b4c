// Package conversation implements the in-process conversation registry for
// the assistant core: an append-only, per-conversation message log with
// per-conversation mutual exclusion, a user index, and listing/diagnostic
// views.
//
// The store is an explicitly owned, injectable dependency. All conversation
// state mutations in the system go through this package; no other component
// holds a mutable reference to a history.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author type of a message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata keys used across the orchestration core.
const (
	// MetaAuthor is the display name of the message author.
	MetaAuthor = "author"

	// MetaUserID is the id of the user who sent the message. Always present
	// on user messages (empty string rather than absent) so downstream
	// aggregation stays stable.
	MetaUserID = "userId"

	// MetaProvider names the LLM provider that produced an assistant message.
	MetaProvider = "provider"

	// MetaEntityID and MetaEntityType reference the domain entity a
	// function-derived message acted on.
	MetaEntityID   = "entityId"
	MetaEntityType = "entityType"

	// MetaDocumentID links a message to an uploaded document.
	MetaDocumentID = "documentId"
)

// DefaultSystemMessage seeds every newly created conversation.
const DefaultSystemMessage = "You are Strive, an assistant for OKR management. " +
	"Help users manage their objectives, key results, teams and tasks."

// Message is one turn in a conversation. Messages are immutable once
// appended; the store returns copies to callers.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"createdAt"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// FunctionPayload carries the serialized output of a domain function
	// call, when this message was derived from one.
	FunctionPayload json.RawMessage `json:"functionPayload,omitempty"`
}

// NewMessage builds a message with a generated id and the current time.
// Metadata may be nil.
func NewMessage(role Role, content string, metadata map[string]string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// clone returns an independent copy so callers cannot mutate stored state.
func (m *Message) clone() *Message {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.FunctionPayload != nil {
		cp.FunctionPayload = append(json.RawMessage(nil), m.FunctionPayload...)
	}
	return &cp
}

// History is an ordered sequence of messages plus the conversation's system
// message. Instances returned by the store are snapshots; appending to a
// snapshot has no effect on stored state.
type History struct {
	ConversationID string     `json:"conversationId"`
	SystemMessage  string     `json:"systemMessage"`
	Messages       []*Message `json:"messages"`
}

// Summary is one entry in a conversation listing.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount int       `json:"messageCount"`
	LastMessage  string    `json:"lastMessage"`
}

// Diagnostics describes one conversation for the operational overview.
type Diagnostics struct {
	ID            string    `json:"id"`
	MessageCount  int       `json:"messageCount"`
	DistinctUsers []string  `json:"distinctUsers"`
	FirstMessage  time.Time `json:"firstMessage"`
	LastMessage   time.Time `json:"lastMessage"`
}
