package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// snippetCols is the standard SELECT column list for scanSnippets.
const snippetCols = `id, conversation_id, user_id, content, created_at`

// Store manages conversation context backed by PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a context store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(embedCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// SaveContext stores one snippet of conversation context. Exact duplicates
// within a conversation are dropped idempotently; past the per-conversation
// cap the oldest rows are evicted (best-effort).
func (s *Store) SaveContext(ctx context.Context, conversationID, text, userID string) error {
	text = strings.TrimSpace(text)
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required")
	}
	if text == "" {
		return fmt.Errorf("content is required")
	}
	if len(text) > MaxContentLength {
		text = text[:MaxContentLength]
	}

	vec, err := s.embed(ctx, text)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_contexts (conversation_id, user_id, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id, md5(content)) DO NOTHING`,
		conversationID, userID, text, vec,
	)
	if err != nil {
		return fmt.Errorf("inserting context snippet: %w", err)
	}

	if evictErr := s.evictIfNeeded(ctx, conversationID); evictErr != nil {
		s.logger.Warn("context eviction failed",
			"conversation_id", conversationID,
			"error", evictErr,
		)
	}
	return nil
}

// GetRelevantContext retrieves the snippets most similar to the query for
// one conversation and renders them into a prompt-ready block. Returns ""
// when nothing relevant is stored.
func (s *Store) GetRelevantContext(ctx context.Context, query, conversationID string) (string, error) {
	if query == "" || conversationID == "" {
		return "", nil
	}
	if len(query) > MaxQueryLen {
		query = query[:MaxQueryLen]
	}
	if strings.ContainsRune(query, 0) {
		return "", nil
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return "", err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+snippetCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM conversation_contexts
		 WHERE conversation_id = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, conversationID, 5,
	)
	if err != nil {
		return "", fmt.Errorf("querying context snippets: %w", err)
	}
	defer rows.Close()

	snippets, err := scanSnippets(rows)
	if err != nil {
		return "", err
	}
	return FormatContext(snippets), nil
}

// DeleteConversation removes all stored context for one conversation.
// Returns the number of snippets removed.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_contexts WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting conversation context: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// evictIfNeeded removes the oldest snippets when a conversation exceeds
// MaxPerConversation.
func (s *Store) evictIfNeeded(ctx context.Context, conversationID string) error {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_contexts WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count); err != nil {
		return fmt.Errorf("counting context snippets: %w", err)
	}
	if count <= MaxPerConversation {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_contexts
		 WHERE id IN (
		   SELECT id FROM conversation_contexts
		   WHERE conversation_id = $1
		   ORDER BY created_at ASC, id ASC
		   LIMIT $2
		 )`,
		conversationID, count-MaxPerConversation,
	)
	if err != nil {
		return fmt.Errorf("evicting oldest snippets: %w", err)
	}
	return nil
}

// scanSnippets reads Snippet structs plus a trailing similarity column.
func scanSnippets(rows pgx.Rows) ([]*Snippet, error) {
	var snippets []*Snippet
	for rows.Next() {
		sn := &Snippet{}
		if err := rows.Scan(
			&sn.ID, &sn.ConversationID, &sn.UserID, &sn.Content,
			&sn.CreatedAt, &sn.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning context snippet: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating context snippets: %w", err)
	}
	return snippets, nil
}

// FormatContext renders snippets into a prompt-ready block. Snippet content
// is sanitized so stored text cannot inject tags or instructions into the
// live prompt.
func FormatContext(snippets []*Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant context from earlier in this conversation:\n")
	for _, sn := range snippets {
		b.WriteString("- ")
		b.WriteString(sanitizeContent(sn.Content))
		b.WriteByte('\n')
	}
	return b.String()
}

// EnhanceSystemMessage appends the retrieved context block to a base system
// prompt. Empty context returns the base unchanged.
func EnhanceSystemMessage(base, contextBlock string) string {
	contextBlock = strings.TrimSpace(contextBlock)
	if contextBlock == "" {
		return base
	}
	return base + "\n\n" + contextBlock
}

// sanitizeContent strips tag characters and collapses newlines so stored
// context cannot break out of its section of the prompt.
func sanitizeContent(s string) string {
	return strings.NewReplacer(
		"<", "",
		">", "",
		"`", "",
		"\n", " ",
		"\r", " ",
	).Replace(s)
}
