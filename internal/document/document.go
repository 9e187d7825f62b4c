// Package document ingests uploaded planning documents and seeds the
// guided OKR creation protocol for the owning conversation.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/workflow"
)

// MaxDocumentBytes caps an uploaded document.
const MaxDocumentBytes = 1 << 20

// Sentinel errors for document ingestion.
var (
	ErrEmptyDocument = errors.New("document contains no text")
	ErrTooLarge      = errors.New("document exceeds size limit")
	ErrNotText       = errors.New("document is not valid text")
)

// documentPromptTemplate frames the extracted document for the model and
// kicks off the one-entity-at-a-time creation protocol.
const documentPromptTemplate = `The user uploaded a planning document (~%d tokens). Its content:

---
%s
---

Guide the user through turning this document into OKRs one entity at a time:
first propose an OKR session, and after each confirmation propose the next
entity (objective, then key result, then task). Wait for explicit
confirmation before creating anything.`

// Result describes a processed document.
type Result struct {
	DocumentID string
	Text       string
	TokenCount int
}

// Processor runs the ingestion pipeline: extract text, estimate size, seed
// the workflow tracker, and install the document context into the
// conversation's system message.
type Processor struct {
	store   *conversation.Store
	tracker *workflow.Tracker
	logger  *slog.Logger
}

// NewProcessor creates a document processor.
func NewProcessor(store *conversation.Store, tracker *workflow.Tracker, logger *slog.Logger) *Processor {
	return &Processor{store: store, tracker: tracker, logger: logger}
}

// Process ingests one document for a conversation. On success the workflow
// tracker holds DocumentProcessed with the new document id, and the
// conversation's system message carries the document content.
func (p *Processor) Process(ctx context.Context, conversationID string, r io.Reader) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := ExtractText(r)
	if err != nil {
		return nil, fmt.Errorf("extracting document text: %w", err)
	}

	res := &Result{
		DocumentID: uuid.NewString(),
		Text:       text,
		TokenCount: EstimateTokens(text),
	}

	p.tracker.Reset(conversationID)
	p.tracker.Track(conversationID, workflow.KeyDocumentID, res.DocumentID)
	p.tracker.Track(conversationID, workflow.KeyCurrentStep, workflow.StepDocumentProcessed.String())

	prompt := conversation.DefaultSystemMessage + "\n\n" +
		fmt.Sprintf(documentPromptTemplate, res.TokenCount, text)
	p.store.SetSystemMessage(conversationID, prompt)

	p.logger.Info("document processed",
		"conversation_id", conversationID,
		"document_id", res.DocumentID,
		"tokens", res.TokenCount,
	)
	return res, nil
}

// ExtractText reads a plain-text or markdown document. Binary uploads are
// rejected; parsing richer formats is the upload front-end's job.
func ExtractText(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxDocumentBytes {
		return "", ErrTooLarge
	}
	if !utf8.Valid(data) {
		return "", ErrNotText
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens with the cl100k_base encoding. When the
// encoding cannot be loaded (it fetches ranks on first use) the estimate
// falls back to the chars/4 heuristic.
func EstimateTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
		encoding = enc
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
