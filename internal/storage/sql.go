package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    label      TEXT    NOT NULL,
    started_at INTEGER NOT NULL,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS samples (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id),
    batch      INTEGER NOT NULL,
    timestamp  INTEGER NOT NULL,
    frequency  REAL    NOT NULL,
    bandwidth  REAL    NOT NULL,
    power      REAL    NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_samples_session_batch ON samples (session_id, batch);
CREATE INDEX IF NOT EXISTS idx_samples_session_frequency ON samples (session_id, frequency);`

	insertSessionSQL = `
INSERT INTO sessions (
                      label,
                      started_at,
                      config)
VALUES (?, ?, ?)`

	selectSessionColumnsSQL = `
SELECT
    s.id,
    s.label,
    s.started_at,
    s.config,
    COUNT(DISTINCT m.batch),
    COUNT(m.id)
FROM sessions s
LEFT JOIN samples m ON m.session_id = s.id`

	selectSessionSQL = selectSessionColumnsSQL + `
WHERE
    s.id = ?
GROUP BY s.id`

	selectSessionsSQL = selectSessionColumnsSQL + `
GROUP BY s.id
ORDER BY s.started_at, s.id`

	insertSampleSQL = `
INSERT INTO samples (
                     session_id,
                     batch,
                     timestamp,
                     frequency,
                     bandwidth,
                     power)
VALUES `

	selectSamplesSQL = `
SELECT
    timestamp,
    frequency,
    bandwidth,
    power
FROM samples
WHERE
    session_id = ?`

	selectLastBatchSQL = `
SELECT COALESCE(MAX(batch), 0) FROM samples WHERE session_id = ?`
)
