package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services"
	"github.com/mshogin/reasonguard/internal/testutil/fixtures"
)

// stores returns every TaskStore implementation, each freshly created.
func stores(t *testing.T) map[string]services.TaskStore {
	t.Helper()
	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]services.TaskStore{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store services.TaskStore)) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) { fn(t, store) })
	}
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()

		task, err := store.CreateTask(ctx, "Plan the migration")
		require.NoError(t, err)
		assert.Regexp(t, `^task_[0-9a-f]{12}$`, task.ID)
		assert.Equal(t, models.TaskStatusPending, task.Status)

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "Plan the migration", got.Prompt)
		assert.Equal(t, models.TaskStatusPending, got.Status)
		assert.True(t, task.CreatedAt.Equal(got.CreatedAt))
		assert.Nil(t, got.Gate)
		assert.Nil(t, got.Meta)

		_, err = store.GetTask(ctx, "task_missing")
		assert.ErrorIs(t, err, models.ErrTaskNotFound)
	})
}

func TestTaskStore_UpdateTask(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()
		task, err := store.CreateTask(ctx, "prompt")
		require.NoError(t, err)

		started := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		task.Status = models.TaskStatusCompleted
		task.TotalRuns = 5
		task.ValidRuns = 4
		task.FamilyCount = 1
		task.Classification = models.ClassificationFragile
		task.Confidence = 0.9
		task.AnswersAgree = true
		task.Gate = &models.GateResult{Decision: models.DecisionBlock, CanOverride: true, Reason: "shallow"}
		task.Meta = &models.TaskMeta{StartedAt: started, FinishedAt: started.Add(time.Second), TotalRuns: 5, ValidRuns: 4, InvalidRuns: 1}
		task.UpdatedAt = started.Add(time.Minute)
		require.NoError(t, store.UpdateTask(ctx, task))

		got, err := store.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, got.Status)
		assert.Equal(t, 4, got.ValidRuns)
		assert.Equal(t, models.ClassificationFragile, got.Classification)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9)
		assert.True(t, got.AnswersAgree)
		require.NotNil(t, got.Gate)
		assert.Equal(t, models.DecisionBlock, got.Gate.Decision)
		assert.True(t, got.Gate.CanOverride)
		require.NotNil(t, got.Meta)
		assert.True(t, started.Equal(got.Meta.StartedAt))
		assert.Equal(t, 1, got.Meta.InvalidRuns)
		assert.True(t, task.UpdatedAt.Equal(got.UpdatedAt))

		err = store.UpdateTask(ctx, &models.Task{ID: "task_missing"})
		assert.ErrorIs(t, err, models.ErrTaskNotFound)
	})
}

func TestTaskStore_ListTasks(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()
		var ids []string
		for _, p := range []string{"first", "second", "third"} {
			task, err := store.CreateTask(ctx, p)
			require.NoError(t, err)
			ids = append(ids, task.ID)
		}

		tasks, err := store.ListTasks(ctx, 2)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		assert.Equal(t, ids[2], tasks[0].ID)
		assert.Equal(t, ids[1], tasks[1].ID)

		tasks, err = store.ListTasks(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, tasks, 3)
	})
}

func TestTaskStore_Runs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()
		task, err := store.CreateTask(ctx, "prompt")
		require.NoError(t, err)

		first := fixtures.Runs(task.ID, []models.AgentOutput{
			fixtures.EmbeddingOutput(task.ID+"_a", 1, 0),
			fixtures.InvalidOutput(task.ID + "_b"),
		})
		first[1].Error = "Missing keys: final_answer"
		first[1].RawResponse = `{"agent_role":"skeptic"}`
		second := fixtures.Runs(task.ID, []models.AgentOutput{
			fixtures.TextOutput(task.ID+"_c", "42", "Compute the answer"),
		})

		require.NoError(t, store.AddRuns(ctx, task.ID, first))
		require.NoError(t, store.AddRuns(ctx, task.ID, second))

		runs, err := store.GetRuns(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, []string{task.ID + "_a", task.ID + "_b", task.ID + "_c"},
			[]string{runs[0].RunID, runs[1].RunID, runs[2].RunID})

		assert.Equal(t, []float64{1, 0}, runs[0].Embedding)
		assert.True(t, runs[0].Valid)
		require.NotNil(t, runs[0].Summary)

		assert.False(t, runs[1].Valid)
		assert.Nil(t, runs[1].Summary)
		assert.Equal(t, "Missing keys: final_answer", runs[1].Error)
		assert.Equal(t, `{"agent_role":"skeptic"}`, runs[1].RawResponse)

		require.NotNil(t, runs[2].Summary)
		assert.Equal(t, "42", runs[2].Summary.FinalAnswer)
		assert.Equal(t, task.ID, runs[2].TaskID)

		err = store.AddRuns(ctx, "task_missing", second)
		assert.ErrorIs(t, err, models.ErrTaskNotFound)

		empty, err := store.GetRuns(ctx, "task_missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestTaskStore_ReplaceFamilies(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()
		task, err := store.CreateTask(ctx, "prompt")
		require.NoError(t, err)

		families, err := store.GetFamilies(ctx, task.ID)
		require.NoError(t, err)
		assert.Empty(t, families)

		require.NoError(t, store.ReplaceFamilies(ctx, task.ID, []models.Family{
			{ID: "family_1", RepresentativeID: "run_1", MemberIDs: []string{"run_1", "run_2"}, Centroid: []float64{0.5, 0.5}},
			{ID: "family_2", RepresentativeID: "run_3", MemberIDs: []string{"run_3"}, Summary: "alone"},
		}))
		require.NoError(t, store.ReplaceFamilies(ctx, task.ID, []models.Family{
			{ID: "family_1", RepresentativeID: "run_2", MemberIDs: []string{"run_1", "run_2", "run_3"}, RepresentativeSignature: "sig"},
		}))

		families, err = store.GetFamilies(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, families, 1)
		assert.Equal(t, "run_2", families[0].RepresentativeID)
		assert.Equal(t, []string{"run_1", "run_2", "run_3"}, families[0].MemberIDs)
		assert.Equal(t, "sig", families[0].RepresentativeSignature)
		assert.Nil(t, families[0].Centroid)
	})
}

func TestTaskStore_FragilePatterns(t *testing.T) {
	forEachStore(t, func(t *testing.T, store services.TaskStore) {
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

		record := func(prompt string, class models.Classification, at time.Time) {
			task, err := store.CreateTask(ctx, prompt)
			require.NoError(t, err)
			task.Status = models.TaskStatusCompleted
			task.Classification = class
			task.UpdatedAt = at
			require.NoError(t, store.UpdateTask(ctx, task))
		}
		record("deploy", models.ClassificationFragile, base)
		record("deploy", models.ClassificationFragile, base.Add(time.Hour))
		record("rollback", models.ClassificationFragile, base.Add(2*time.Hour))
		record("scale", models.ClassificationRobust, base.Add(3*time.Hour))

		patterns, err := store.FragilePatterns(ctx, 10)
		require.NoError(t, err)
		require.Len(t, patterns, 2)
		assert.Equal(t, "deploy", patterns[0].Prompt)
		assert.Equal(t, 2, patterns[0].Count)
		assert.True(t, base.Add(time.Hour).Equal(patterns[0].LastSeen))
		assert.Equal(t, "rollback", patterns[1].Prompt)

		patterns, err = store.FragilePatterns(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, patterns, 1)
	})
}

func TestOpenSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "guard.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	task, err := store.CreateTask(ctx, "persisted")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Prompt)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	task, err := store.CreateTask(ctx, "prompt")
	require.NoError(t, err)
	task.Prompt = "mutated"

	got, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "prompt", got.Prompt)
}

func TestMemoryStore_WithFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().WithFailure("AddRuns", true)

	task, err := store.CreateTask(ctx, "prompt")
	require.NoError(t, err)

	err = store.AddRuns(ctx, task.ID, nil)
	assert.ErrorIs(t, err, ErrInjectedFailure)
	assert.Contains(t, err.Error(), "AddRuns")

	store.WithFailure("AddRuns", false)
	assert.NoError(t, store.AddRuns(ctx, task.ID, nil))
}
