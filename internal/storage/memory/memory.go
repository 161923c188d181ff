// Package memory provides an in-memory storage implementation used by tests
// and ad hoc runs without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"crypto-tracker/internal/storage"
)

// Store keeps snapshots, alerts, and execution records in process memory.
// It implements the same contracts as the PostgreSQL store, including
// rollback semantics for InTx.
type Store struct {
	mu         sync.Mutex
	snapshots  []storage.PriceSnapshot
	alerts     []storage.PriceAlert
	executions map[string]storage.ExecutionRecord

	nextSnapshotID int64
	nextAlertID    int64

	// SaveErr and AlertErr let tests inject write failures.
	SaveErr  error
	AlertErr error
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{executions: make(map[string]storage.ExecutionRecord)}
}

// SaveSnapshot appends a snapshot and returns its identifier.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.NewSnapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return 0, s.SaveErr
	}

	s.nextSnapshotID++
	rec := storage.PriceSnapshot{
		ID:        s.nextSnapshotID,
		FetchedAt: time.Now().UTC(),
		Source:    snap.Source,
		BTCUSD:    snap.BTCUSD,
		ETHUSD:    snap.ETHUSD,
		EURRate:   snap.EURRate,
		GBPRate:   snap.GBPRate,
		JPYRate:   snap.JPYRate,
		RawData:   snap.RawData,
	}
	s.snapshots = append(s.snapshots, rec)
	return rec.ID, nil
}

// LatestSnapshot returns the most recently appended snapshot.
func (s *Store) LatestSnapshot(ctx context.Context) (*storage.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) == 0 {
		return nil, nil
	}
	snap := s.snapshots[len(s.snapshots)-1]
	return &snap, nil
}

// PreviousSnapshot returns the second-most-recent snapshot.
func (s *Store) PreviousSnapshot(ctx context.Context) (*storage.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.snapshots) < 2 {
		return nil, nil
	}
	snap := s.snapshots[len(s.snapshots)-2]
	return &snap, nil
}

// ListRecentSnapshots lists snapshots newest first.
func (s *Store) ListRecentSnapshots(ctx context.Context, limit int) ([]storage.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.PriceSnapshot, 0, limit)
	for i := len(s.snapshots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.snapshots[i])
	}
	return out, nil
}

// ListSnapshotsBetween lists snapshots within a fetch-time window.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]storage.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.PriceSnapshot
	for _, snap := range s.snapshots {
		if !snap.FetchedAt.Before(from) && snap.FetchedAt.Before(to) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.snapshots)), nil
}

// InsertAlert appends an alert record.
func (s *Store) InsertAlert(ctx context.Context, alert storage.PriceAlert) (storage.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.AlertErr != nil {
		return storage.PriceAlert{}, s.AlertErr
	}

	s.nextAlertID++
	alert.ID = s.nextAlertID
	alert.CreatedAt = time.Now().UTC()
	s.alerts = append(s.alerts, alert)
	return alert, nil
}

// ListRecentAlerts lists alerts newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]storage.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.PriceAlert, 0, limit)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.alerts[i])
	}
	return out, nil
}

// Alerts returns a copy of every stored alert, oldest first.
func (s *Store) Alerts() []storage.PriceAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.PriceAlert(nil), s.alerts...)
}

// LogExecution inserts or merges by execution id; on conflict only status
// and error message are overwritten.
func (s *Store) LogExecution(ctx context.Context, rec storage.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.executions[rec.ExecutionID]; ok {
		existing.Status = rec.Status
		existing.ErrorMessage = rec.ErrorMessage
		existing.UpdatedAt = now
		s.executions[rec.ExecutionID] = existing
		return nil
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.executions[rec.ExecutionID] = rec
	return nil
}

// UpdateExecutionStatus updates status and error message; unknown ids are a
// silent no-op.
func (s *Store) UpdateExecutionStatus(ctx context.Context, executionID string, status storage.ExecutionStatus, errorMessage *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.executions[executionID]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.ErrorMessage = errorMessage
	rec.UpdatedAt = time.Now().UTC()
	s.executions[executionID] = rec
	return nil
}

// GetExecution fetches an execution record, or nil when unknown.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*storage.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.executions[executionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ExecutionCount reports the number of tracked executions.
func (s *Store) ExecutionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.executions)
}

// InTx runs fn and restores the previous state if it fails, mirroring the
// rollback behaviour of the SQL store.
func (s *Store) InTx(ctx context.Context, fn func(storage.Stores) error) error {
	s.mu.Lock()
	snapshots := append([]storage.PriceSnapshot(nil), s.snapshots...)
	alerts := append([]storage.PriceAlert(nil), s.alerts...)
	nextSnapshotID := s.nextSnapshotID
	nextAlertID := s.nextAlertID
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.snapshots = snapshots
		s.alerts = alerts
		s.nextSnapshotID = nextSnapshotID
		s.nextAlertID = nextAlertID
		s.mu.Unlock()
		return err
	}
	return nil
}

var (
	_ storage.SnapshotStore  = (*Store)(nil)
	_ storage.AlertStore     = (*Store)(nil)
	_ storage.ExecutionStore = (*Store)(nil)
	_ storage.TxRunner       = (*Store)(nil)
)
