package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roman-kulish/ismscope/internal/sensor"
)

// ReadOption configures a ReadSamples query
type ReadOption func(*sampleQuery)

// WithFreqRange keeps samples with frequency in [minFreq, maxFreq] MHz
func WithFreqRange(minFreq, maxFreq float64) ReadOption {
	return func(q *sampleQuery) {
		q.minFreq = &minFreq
		q.maxFreq = &maxFreq
	}
}

// WithTimeRange keeps samples with timestamp in [startTime, endTime]
func WithTimeRange(startTime, endTime time.Time) ReadOption {
	return func(q *sampleQuery) {
		q.startTime = &startTime
		q.endTime = &endTime
	}
}

// WithBatch keeps samples of a single recorded batch
func WithBatch(batch int64) ReadOption {
	return func(q *sampleQuery) {
		q.batch = &batch
	}
}

// WithLastBatch keeps samples of the most recent batch of the session
func WithLastBatch() ReadOption {
	return func(q *sampleQuery) {
		q.lastBatch = true
	}
}

// WithLimit caps the number of returned samples
func WithLimit(n int) ReadOption {
	return func(q *sampleQuery) {
		q.limit = n
	}
}

type sampleQuery struct {
	minFreq   *float64
	maxFreq   *float64
	startTime *time.Time
	endTime   *time.Time
	batch     *int64
	lastBatch bool
	limit     int
}

func (q *sampleQuery) validate() error {
	if q.minFreq != nil && *q.minFreq > *q.maxFreq {
		return fmt.Errorf("min frequency %f is greater than max frequency %f", *q.minFreq, *q.maxFreq)
	}
	if q.startTime != nil && q.startTime.After(*q.endTime) {
		return fmt.Errorf("start time %s is after end time %s", q.startTime, q.endTime)
	}
	if q.limit < 0 {
		return fmt.Errorf("negative limit %d", q.limit)
	}
	return nil
}

func (q *sampleQuery) build(sessionID int64) (string, []any) {
	var sb strings.Builder
	args := []any{sessionID}

	sb.WriteString(selectSamplesSQL)

	if q.minFreq != nil {
		sb.WriteString(" AND frequency BETWEEN ? AND ?")
		args = append(args, *q.minFreq, *q.maxFreq)
	}
	if q.startTime != nil {
		sb.WriteString(" AND timestamp BETWEEN ? AND ?")
		args = append(args, toUnixNano(*q.startTime), toUnixNano(*q.endTime))
	}
	if q.batch != nil {
		sb.WriteString(" AND batch = ?")
		args = append(args, *q.batch)
	}
	if q.lastBatch {
		sb.WriteString(" AND batch = (SELECT MAX(batch) FROM samples WHERE session_id = ?)")
		args = append(args, sessionID)
	}

	sb.WriteString(" ORDER BY batch, id")

	if q.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.limit)
	}

	return sb.String(), args
}

// Session returns a recording session with its batch and sample counts
func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	return session, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	sessions = []*Session{}
	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var startedAt int64
	var config sql.NullString

	if err := row.Scan(&sess.ID, &sess.Label, &startedAt, &config, &sess.Batches, &sess.Samples); err != nil {
		return nil, err
	}

	sess.StartedAt = fromUnixNano(startedAt)
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *SqliteStore) ReadSamples(ctx context.Context, sessionID int64, opts ...ReadOption) (samples []sensor.Sample, err error) {
	var q sampleQuery
	for _, opt := range opts {
		opt(&q)
	}
	if err = q.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	// fails with ErrSessionNotFound for unknown sessions
	if _, err = s.Session(ctx, sessionID); err != nil {
		return nil, err
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	query, args := q.build(sessionID)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer closeWithError(rows, &err)

	samples = []sensor.Sample{}
	for rows.Next() {
		var sample sensor.Sample
		var timestamp int64

		if err = rows.Scan(&timestamp, &sample.Frequency, &sample.Bandwidth, &sample.Power); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		sample.Timestamp = fromUnixNano(timestamp)

		samples = append(samples, sample)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}

	return samples, nil
}

// LastBatch returns the highest batch number recorded for a session, 0 if none
func (s *SqliteStore) LastBatch(ctx context.Context, sessionID int64) (batch int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}

	if err = db.QueryRowContext(ctx, selectLastBatchSQL, sessionID).Scan(&batch); err != nil {
		return 0, fmt.Errorf("querying last batch: %w", err)
	}
	return batch, nil
}
