package storage

import (
	"context"
	"errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/roman-kulish/ismscope/internal/sensor"
)

var (
	// ErrSessionNotFound is returned when a recording session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidQuery is returned when ReadSamples options contradict each other.
	ErrInvalidQuery = errors.New("invalid query")
)

// Store records generated sample batches grouped into sessions. One session
// spans a single Start/Stop run of the update loop.
type Store interface {
	// CreateSession opens a recording session and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - label: Human readable session label
	//   - config: Optional generator configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, label string, config any) (sessionID int64, err error)

	// Session retrieves a recording session by its ID, ErrSessionNotFound if
	// there is no such session.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions returns all recording sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// StoreBatch saves one tick's batch. All samples of the batch are stored
	// in a single transaction.
	StoreBatch(ctx context.Context, sessionID, batch int64, samples []sensor.Sample) error

	// ReadSamples returns recorded samples of a session in recording order.
	ReadSamples(ctx context.Context, sessionID int64, opts ...ReadOption) ([]sensor.Sample, error)

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
