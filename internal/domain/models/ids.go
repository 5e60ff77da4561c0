package models

import (
	"strings"

	"github.com/google/uuid"
)

func shortID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewTaskID returns "task_" followed by 12 hex characters.
func NewTaskID() string {
	return shortID("task_")
}

// NewRunID returns "run_" followed by 12 hex characters.
func NewRunID() string {
	return shortID("run_")
}
