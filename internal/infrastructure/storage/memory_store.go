package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services"
)

// ErrInjectedFailure is returned by a MemoryStore configured to fail.
var ErrInjectedFailure = errors.New("memory store: injected failure")

// MemoryStore is a process-local TaskStore. It backs the server when no
// database path is configured and serves as a fake in tests.
//
// Design:
// - Every read returns deep copies, so callers never share state
// - Failures can be injected per operation for error-path tests
type MemoryStore struct {
	mu       sync.RWMutex
	tasks    map[string]*models.Task
	order    []string // creation order
	runs     map[string][]models.TaskRun
	families map[string][]models.Family
	failOn   map[string]bool
	now      func() time.Time
}

var _ services.TaskStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:    make(map[string]*models.Task),
		runs:     make(map[string][]models.TaskRun),
		families: make(map[string][]models.Family),
		failOn:   make(map[string]bool),
		now:      time.Now,
	}
}

// WithFailure makes the named operation (e.g. "AddRuns") fail.
func (m *MemoryStore) WithFailure(operation string, fail bool) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[operation] = fail
	return m
}

func (m *MemoryStore) failure(operation string) error {
	if m.failOn[operation] {
		return fmt.Errorf("%w in %s", ErrInjectedFailure, operation)
	}
	return nil
}

// CreateTask inserts a PENDING task with a fresh id.
func (m *MemoryStore) CreateTask(ctx context.Context, prompt string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateTask"); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	task := &models.Task{
		ID:        models.NewTaskID(),
		Prompt:    prompt,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	return cloneTask(task), nil
}

// UpdateTask replaces a stored task.
func (m *MemoryStore) UpdateTask(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("UpdateTask"); err != nil {
		return err
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, task.ID)
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetTask loads one task.
func (m *MemoryStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	return cloneTask(task), nil
}

// ListTasks returns the most recent tasks first.
func (m *MemoryStore) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := []*models.Task{}
	for i := len(m.order) - 1; i >= 0 && len(tasks) < limit; i-- {
		tasks = append(tasks, cloneTask(m.tasks[m.order[i]]))
	}
	return tasks, nil
}

// AddRuns appends runs to a task.
func (m *MemoryStore) AddRuns(ctx context.Context, taskID string, runs []models.TaskRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("AddRuns"); err != nil {
		return err
	}
	if _, ok := m.tasks[taskID]; !ok {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	for _, r := range runs {
		r.TaskID = taskID
		m.runs[taskID] = append(m.runs[taskID], deepCopy(r))
	}
	return nil
}

// GetRuns returns the runs of a task in insertion order.
func (m *MemoryStore) GetRuns(ctx context.Context, taskID string) ([]models.TaskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TaskRun, 0, len(m.runs[taskID]))
	for _, r := range m.runs[taskID] {
		out = append(out, deepCopy(r))
	}
	return out, nil
}

// ReplaceFamilies swaps the stored families of a task.
func (m *MemoryStore) ReplaceFamilies(ctx context.Context, taskID string, families []models.Family) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ReplaceFamilies"); err != nil {
		return err
	}
	m.families[taskID] = deepCopy(families)
	return nil
}

// GetFamilies returns the stored families of a task.
func (m *MemoryStore) GetFamilies(ctx context.Context, taskID string) ([]models.Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.families[taskID] == nil {
		return []models.Family{}, nil
	}
	return deepCopy(m.families[taskID]), nil
}

// FragilePatterns groups prompts whose latest classification is FRAGILE.
func (m *MemoryStore) FragilePatterns(ctx context.Context, limit int) ([]models.FragilePattern, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPrompt := make(map[string]*models.FragilePattern)
	for _, t := range m.tasks {
		if t.Classification != models.ClassificationFragile {
			continue
		}
		p, ok := byPrompt[t.Prompt]
		if !ok {
			p = &models.FragilePattern{Prompt: t.Prompt}
			byPrompt[t.Prompt] = p
		}
		p.Count++
		if t.UpdatedAt.After(p.LastSeen) {
			p.LastSeen = t.UpdatedAt
		}
	}

	patterns := make([]models.FragilePattern, 0, len(byPrompt))
	for _, p := range byPrompt {
		patterns = append(patterns, *p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].LastSeen.After(patterns[j].LastSeen)
	})
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTask(t *models.Task) *models.Task {
	c := deepCopy(*t)
	// JSON drops sub-second monotonic data but keeps wall time; restore exact values.
	c.CreatedAt, c.UpdatedAt = t.CreatedAt, t.UpdatedAt
	return &c
}

// deepCopy round-trips through JSON; every stored type is JSON-shaped.
func deepCopy[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memory store: copy %T: %v", v, err))
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("memory store: copy %T: %v", v, err))
	}
	return out
}
