package store

import (
	"errors"
	"time"

	"macro-go-engine/internal/macro"
)

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Macro operations
	SaveMacro(m *macro.Macro) error
	GetMacro(id string) (*macro.Macro, error)
	DeleteMacro(id string) error
	ListMacros() ([]*macro.Macro, error)

	// IncrementRunCount atomically bumps the run counter and sets LastRun.
	// Returns ErrNotFound if the macro does not exist.
	IncrementRunCount(id string, at time.Time) error

	// Run history
	SaveRun(run *Run) error
	GetRun(id string) (*Run, error)
	// ListRuns returns runs newest first. An empty macroID lists all runs.
	ListRuns(macroID string) ([]*Run, error)

	// Settings hold small JSON-encoded values (active mode, granted
	// permissions).
	SaveSetting(key string, value any) error
	GetSetting(key string, dst any) error

	// Close the store
	Close() error
}
