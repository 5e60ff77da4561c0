package storage

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id         TEXT PRIMARY KEY,
	prompt          TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	total_runs      INTEGER NOT NULL DEFAULT 0,
	valid_runs      INTEGER NOT NULL DEFAULT 0,
	family_count    INTEGER NOT NULL DEFAULT 0,
	classification  TEXT,
	confidence      REAL NOT NULL DEFAULT 0,
	answers_agree   INTEGER NOT NULL DEFAULT 0,
	gate_json       TEXT,
	analysis_error  TEXT,
	meta_json       TEXT
);

CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tasks_classification ON tasks(classification);

CREATE TABLE IF NOT EXISTS runs (
	run_id           TEXT PRIMARY KEY,
	task_id          TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
	seq              INTEGER NOT NULL,
	agent_role       TEXT NOT NULL,
	raw_response     TEXT,
	summary_json     TEXT,
	is_valid         INTEGER NOT NULL,
	error            TEXT,
	embedding_json   TEXT,
	embedding_error  TEXT,
	elapsed_ms       INTEGER NOT NULL DEFAULT 0,
	attempt_count    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task_id, seq);

CREATE TABLE IF NOT EXISTS families (
	task_id                  TEXT NOT NULL REFERENCES tasks(task_id) ON DELETE CASCADE,
	seq                      INTEGER NOT NULL,
	family_id                TEXT NOT NULL,
	representative_id        TEXT NOT NULL,
	member_ids_json          TEXT NOT NULL,
	centroid_json            TEXT,
	representative_signature TEXT NOT NULL,
	summary                  TEXT NOT NULL,
	PRIMARY KEY (task_id, family_id)
);
`
