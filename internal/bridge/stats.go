package bridge

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats counts what the bridge loop has done since start.
type Stats struct {
	reports        atomic.Uint64
	decodeErrors   atomic.Uint64
	commandsSent   atomic.Uint64
	dryRunCommands atomic.Uint64
	diagnostics    atomic.Uint64
	displayUpdates atomic.Uint64

	mu             sync.Mutex
	lastDiagnostic string
	lastDiagAt     time.Time
}

// StatsSnapshot is the JSON view of Stats.
type StatsSnapshot struct {
	Reports          uint64    `json:"reports"`
	DecodeErrors     uint64    `json:"decode_errors"`
	CommandsSent     uint64    `json:"commands_sent"`
	DryRunCommands   uint64    `json:"dry_run_commands"`
	Diagnostics      uint64    `json:"diagnostics"`
	DisplayUpdates   uint64    `json:"display_updates"`
	LastDiagnostic   string    `json:"last_diagnostic,omitempty"`
	LastDiagnosticAt time.Time `json:"last_diagnostic_at,omitzero"`
}

func (s *Stats) recordDiagnostic(err error) {
	s.diagnostics.Add(1)

	s.mu.Lock()
	s.lastDiagnostic = err.Error()
	s.lastDiagAt = time.Now()
	s.mu.Unlock()
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	last, at := s.lastDiagnostic, s.lastDiagAt
	s.mu.Unlock()

	return StatsSnapshot{
		Reports:          s.reports.Load(),
		DecodeErrors:     s.decodeErrors.Load(),
		CommandsSent:     s.commandsSent.Load(),
		DryRunCommands:   s.dryRunCommands.Load(),
		Diagnostics:      s.diagnostics.Load(),
		DisplayUpdates:   s.displayUpdates.Load(),
		LastDiagnostic:   last,
		LastDiagnosticAt: at,
	}
}
