// Package memory persists conversation context snippets in PostgreSQL with
// pgvector embeddings and retrieves the most relevant ones for prompt
// enrichment. The store is an optional collaborator: a nil *Store disables
// retrieval without changing orchestrator behavior.
package memory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding dimensionality stored in the
// conversation_contexts table. Must match the migration.
const VectorDimension = 1536

const (
	// MaxContentLength caps a single saved snippet.
	MaxContentLength = 4000

	// MaxPerConversation caps stored snippets per conversation; the oldest
	// rows are evicted past the cap.
	MaxPerConversation = 200

	// MaxTopK bounds how many snippets a retrieval may return.
	MaxTopK = 20

	// MaxQueryLen truncates over-long retrieval queries before embedding.
	MaxQueryLen = 2000

	// EmbedTimeout bounds a single embedding call.
	EmbedTimeout = 10 * time.Second
)

// ErrNotFound indicates the requested snippet does not exist.
var ErrNotFound = errors.New("context snippet not found")

// Snippet is one stored piece of conversation context.
type Snippet struct {
	ID             uuid.UUID
	ConversationID string
	UserID         string
	Content        string
	CreatedAt      time.Time

	// Score is the cosine similarity populated by retrieval queries.
	Score float64
}
