package services

import (
	"context"

	"github.com/mshogin/reasonguard/internal/domain/models"
)

// TaskStore persists tasks, agent runs and reasoning families.
//
// Design Principles:
// - Domain layer defines the interface
// - Infrastructure layer provides implementations (SQLite)
// - Families are replaced as a whole so re-analysis never mixes generations
//
// Lookups of unknown task ids return models.ErrTaskNotFound.
type TaskStore interface {
	CreateTask(ctx context.Context, prompt string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// ListTasks returns the most recent tasks first.
	ListTasks(ctx context.Context, limit int) ([]*models.Task, error)

	AddRuns(ctx context.Context, taskID string, runs []models.TaskRun) error
	GetRuns(ctx context.Context, taskID string) ([]models.TaskRun, error)

	ReplaceFamilies(ctx context.Context, taskID string, families []models.Family) error
	GetFamilies(ctx context.Context, taskID string) ([]models.Family, error)

	// FragilePatterns groups prompts whose latest analysis was FRAGILE.
	FragilePatterns(ctx context.Context, limit int) ([]models.FragilePattern, error)

	Close() error
}
