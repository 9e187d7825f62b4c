// Package functions is the domain function registry: named OKR operations
// the orchestration core can invoke, either directly from analyzed intents
// or through the model's function-calling path.
//
// Handlers delegate to a DomainService implemented outside the core (the
// OKR business layer). Destructive operations are confirmation-gated: a
// call without confirmed=true returns a confirmation request instead of
// executing.
package functions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Role names the four fixed permission roles.
type Role string

// Fixed roles, in decreasing order of privilege.
const (
	RoleSuperAdmin        Role = "SuperAdmin"
	RoleOrganizationAdmin Role = "OrganizationAdmin"
	RoleTeamManager       Role = "TeamManager"
	RoleCollaborator      Role = "Collaborator"
)

// UserContext is the caller identity passed through to permission-sensitive
// operations.
type UserContext struct {
	UserID         string
	UserName       string
	Role           Role
	OrganizationID string
}

// ctxKey is the context key type for UserContext propagation into tool
// handlers on the function-calling path.
type ctxKey struct{}

// WithUserContext returns a context carrying the user context.
func WithUserContext(ctx context.Context, uc UserContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, uc)
}

// UserContextFrom extracts the user context, or a zero value when absent.
func UserContextFrom(ctx context.Context) UserContext {
	if uc, ok := ctx.Value(ctxKey{}).(UserContext); ok {
		return uc
	}
	return UserContext{}
}

// Result is the outcome of one domain function execution.
type Result struct {
	// Payload is the handler's result object, serialized into the
	// assistant message when present.
	Payload any

	// EntityType and EntityID reference the affected domain entity.
	EntityType string
	EntityID   string

	// Operation names what was performed (e.g. "create").
	Operation string

	// Message is the human-readable outcome line.
	Message string

	// NeedsConfirmation is set when a destructive handler refused to run
	// without an explicit confirmation turn.
	NeedsConfirmation bool
}

// Handler executes one named domain operation.
type Handler func(ctx context.Context, params map[string]string, uc UserContext) (*Result, error)

// ErrUnknownFunction is returned when no handler is registered for a name.
var ErrUnknownFunction = errors.New("unknown function")

// Registry maps function names to handlers.
//
// Safe for concurrent use: registration normally happens at startup, but
// lookups and registration are independently locked.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a handler under the given function name, replacing any
// previous registration.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns all registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke executes the named function. Unknown names return
// ErrUnknownFunction; handler panics are converted into errors so one bad
// handler cannot take down a batch.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]string, uc UserContext) (res *Result, err error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("function handler panicked",
				"function", name,
				"panic", rec,
			)
			res = nil
			err = fmt.Errorf("function %s panicked: %v", name, rec)
		}
	}()

	res, err = h(ctx, params, uc)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &Result{Operation: name}
	}
	return res, nil
}
