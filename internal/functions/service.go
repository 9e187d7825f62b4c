package functions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// InMemoryService is a DomainService backed by in-process maps. Real OKR
// persistence lives in the product backend; this implementation keeps the
// conversation core runnable on its own and is what serve mode wires when
// no external backend is configured.
type InMemoryService struct {
	mu         sync.Mutex
	teams      map[string]string
	members    map[string][]string
	sessions   map[string]string
	objectives map[string]string
	keyResults map[string]string
	tasks      map[string]string
	statuses   map[string]string

	logger *slog.Logger
}

// NewInMemoryService creates an empty in-memory domain service.
func NewInMemoryService(logger *slog.Logger) *InMemoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryService{
		teams:      make(map[string]string),
		members:    make(map[string][]string),
		sessions:   make(map[string]string),
		objectives: make(map[string]string),
		keyResults: make(map[string]string),
		tasks:      make(map[string]string),
		statuses:   make(map[string]string),
		logger:     logger,
	}
}

func (s *InMemoryService) create(kind string, store map[string]string, name string) string {
	id := uuid.NewString()
	store[id] = name
	s.logger.Debug("domain entity created", "kind", kind, "id", id, "name", name)
	return id
}

func (s *InMemoryService) CreateTeam(_ context.Context, _ UserContext, name, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create("team", s.teams, name), nil
}

func (s *InMemoryService) AddTeamMember(_ context.Context, _ UserContext, teamID, userName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return fmt.Errorf("team %s not found", teamID)
	}
	s.members[teamID] = append(s.members[teamID], userName)
	return nil
}

func (s *InMemoryService) CreateOKRSession(_ context.Context, _ UserContext, title, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create("session", s.sessions, title), nil
}

func (s *InMemoryService) CreateObjective(_ context.Context, _ UserContext, _, title, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create("objective", s.objectives, title), nil
}

func (s *InMemoryService) CreateKeyResult(_ context.Context, _ UserContext, _, title, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create("key result", s.keyResults, title), nil
}

func (s *InMemoryService) CreateTask(_ context.Context, _ UserContext, _, title, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create("task", s.tasks, title), nil
}

func (s *InMemoryService) UpdateTaskStatus(_ context.Context, _ UserContext, taskID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	s.statuses[taskID] = status
	return nil
}

func (s *InMemoryService) DeleteObjective(_ context.Context, _ UserContext, objectiveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objectives[objectiveID]; !ok {
		return fmt.Errorf("objective %s not found", objectiveID)
	}
	delete(s.objectives, objectiveID)
	return nil
}
