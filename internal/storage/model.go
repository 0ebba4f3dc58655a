package storage

import (
	"time"
)

// Session describes a recording session
type Session struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"startedAt"`
	Config    *string   `json:"config,omitempty"`
	Batches   int64     `json:"batches"`
	Samples   int64     `json:"samples"`
}
