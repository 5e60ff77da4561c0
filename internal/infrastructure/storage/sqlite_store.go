// Package storage persists tasks, agent runs and reasoning families.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services"
)

// DefaultListLimit applies when a caller passes a non-positive limit.
const DefaultListLimit = 20

// timeLayout is fixed width so text comparison in SQL orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements services.TaskStore with SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ services.TaskStore = (*SQLiteStore)(nil)

// OpenSQLite opens or creates a database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var v int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a PENDING task with a fresh id.
func (s *SQLiteStore) CreateTask(ctx context.Context, prompt string) (*models.Task, error) {
	now := s.now().UTC()
	task := &models.Task{
		ID:        models.NewTaskID(),
		Prompt:    prompt,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, prompt, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.Prompt, string(task.Status), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

// UpdateTask overwrites the mutable columns of a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *models.Task) error {
	gate, err := marshalNullable(task.Gate, task.Gate == nil)
	if err != nil {
		return err
	}
	meta, err := marshalNullable(task.Meta, task.Meta == nil)
	if err != nil {
		return err
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = s.now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET
			status = ?, updated_at = ?, total_runs = ?, valid_runs = ?, family_count = ?,
			classification = ?, confidence = ?, answers_agree = ?, gate_json = ?,
			analysis_error = ?, meta_json = ?
		WHERE task_id = ?`,
		string(task.Status), task.UpdatedAt.UTC().Format(timeLayout), task.TotalRuns, task.ValidRuns,
		task.FamilyCount, nullString(string(task.Classification)), task.Confidence, task.AnswersAgree,
		gate, nullString(task.AnalysisError), meta, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, task.ID)
	}
	return nil
}

const taskColumns = `task_id, prompt, status, created_at, updated_at, total_runs, valid_runs,
	family_count, classification, confidence, answers_agree, gate_json, analysis_error, meta_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                           models.Task
		status, created, updated    string
		classification, analysisErr sql.NullString
		gateJSON, metaJSON          sql.NullString
	)
	err := row.Scan(&t.ID, &t.Prompt, &status, &created, &updated, &t.TotalRuns, &t.ValidRuns,
		&t.FamilyCount, &classification, &t.Confidence, &t.AnswersAgree, &gateJSON, &analysisErr, &metaJSON)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Classification = models.Classification(classification.String)
	t.AnalysisError = analysisErr.String
	if t.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if gateJSON.Valid {
		t.Gate = &models.GateResult{}
		if err := json.Unmarshal([]byte(gateJSON.String), t.Gate); err != nil {
			return nil, fmt.Errorf("decode gate: %w", err)
		}
	}
	if metaJSON.Valid {
		t.Meta = &models.TaskMeta{}
		if err := json.Unmarshal([]byte(metaJSON.String), t.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
	}
	return &t, nil
}

// GetTask loads one task.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns the most recent tasks first.
func (s *SQLiteStore) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// AddRuns appends runs to a task, keeping their order.
func (s *SQLiteStore) AddRuns(ctx context.Context, taskID string, runs []models.TaskRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add runs: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE task_id = ?`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("add runs: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM runs WHERE task_id = ?`, taskID).Scan(&seq); err != nil {
		return fmt.Errorf("add runs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO runs (run_id, task_id, seq, agent_role, raw_response, summary_json, is_valid,
			error, embedding_json, embedding_error, elapsed_ms, attempt_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare run insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range runs {
		summary, err := marshalNullable(r.Summary, r.Summary == nil)
		if err != nil {
			return err
		}
		embedding, err := marshalNullable(r.Embedding, r.Embedding == nil)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, taskID, seq+i, r.AgentRole, nullString(r.RawResponse),
			summary, r.Valid, nullString(r.Error), embedding, nullString(r.EmbeddingError),
			r.ElapsedMS, r.AttemptCount); err != nil {
			return fmt.Errorf("insert run %s: %w", r.RunID, err)
		}
	}
	return tx.Commit()
}

// GetRuns returns the runs of a task in insertion order.
func (s *SQLiteStore) GetRuns(ctx context.Context, taskID string) ([]models.TaskRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, agent_role, raw_response, summary_json, is_valid, error,
			embedding_json, embedding_error, elapsed_ms, attempt_count
		FROM runs WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get runs: %w", err)
	}
	defer rows.Close()

	runs := []models.TaskRun{}
	for rows.Next() {
		var (
			r                       models.TaskRun
			raw, summary, runErr    sql.NullString
			embedding, embeddingErr sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.AgentRole, &raw, &summary, &r.Valid, &runErr,
			&embedding, &embeddingErr, &r.ElapsedMS, &r.AttemptCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.RawResponse = raw.String
		r.Error = runErr.String
		r.EmbeddingError = embeddingErr.String
		if summary.Valid {
			r.Summary = &models.ReasoningSummary{}
			if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
				return nil, fmt.Errorf("decode summary of %s: %w", r.RunID, err)
			}
		}
		if embedding.Valid {
			if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
				return nil, fmt.Errorf("decode embedding of %s: %w", r.RunID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ReplaceFamilies swaps the stored families of a task in one transaction.
func (s *SQLiteStore) ReplaceFamilies(ctx context.Context, taskID string, families []models.Family) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace families: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM families WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("clear families: %w", err)
	}
	for i, f := range families {
		members, err := json.Marshal(f.MemberIDs)
		if err != nil {
			return fmt.Errorf("encode members: %w", err)
		}
		centroid, err := marshalNullable(f.Centroid, f.Centroid == nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO families (task_id, seq, family_id, representative_id, member_ids_json,
				centroid_json, representative_signature, summary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			taskID, i, f.ID, f.RepresentativeID, string(members), centroid, f.RepresentativeSignature, f.Summary); err != nil {
			return fmt.Errorf("insert family %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// GetFamilies returns the stored families of a task in family order.
func (s *SQLiteStore) GetFamilies(ctx context.Context, taskID string) ([]models.Family, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT family_id, representative_id, member_ids_json, centroid_json, representative_signature, summary
		FROM families WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get families: %w", err)
	}
	defer rows.Close()

	families := []models.Family{}
	for rows.Next() {
		var (
			f        models.Family
			members  string
			centroid sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.RepresentativeID, &members, &centroid, &f.RepresentativeSignature, &f.Summary); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &f.MemberIDs); err != nil {
			return nil, fmt.Errorf("decode members of %s: %w", f.ID, err)
		}
		if centroid.Valid {
			if err := json.Unmarshal([]byte(centroid.String), &f.Centroid); err != nil {
				return nil, fmt.Errorf("decode centroid of %s: %w", f.ID, err)
			}
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

// FragilePatterns groups prompts whose latest classification is FRAGILE,
// most frequent first.
func (s *SQLiteStore) FragilePatterns(ctx context.Context, limit int) ([]models.FragilePattern, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT prompt, COUNT(*) AS n, MAX(updated_at) AS last_seen
		FROM tasks WHERE classification = ?
		GROUP BY prompt ORDER BY n DESC, last_seen DESC LIMIT ?`,
		string(models.ClassificationFragile), limit)
	if err != nil {
		return nil, fmt.Errorf("fragile patterns: %w", err)
	}
	defer rows.Close()

	patterns := []models.FragilePattern{}
	for rows.Next() {
		var (
			p        models.FragilePattern
			lastSeen string
		)
		if err := rows.Scan(&p.Prompt, &p.Count, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		if p.LastSeen, err = time.Parse(timeLayout, lastSeen); err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func marshalNullable(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
