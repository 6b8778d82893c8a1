// Package export writes the snapshot history out of the database: as an XLSX
// workbook on demand and to a Google spreadsheet after each daily snapshot.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/solosaving/backend/internal/domain"
)

// SnapshotSource reads stored snapshots oldest first.
type SnapshotSource interface {
	Since(ctx context.Context, start time.Time) ([]domain.DailySnapshot, error)
}

// HoldingLister lists the live holdings.
type HoldingLister interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
}

// SnapshotWriter receives the full snapshot history.
type SnapshotWriter interface {
	WriteSnapshots(ctx context.Context, snapshots []domain.DailySnapshot) error
}

// Service builds exports from the stores.
type Service struct {
	snapshots SnapshotSource
	holdings  HoldingLister
	writer    SnapshotWriter // optional
}

// NewService creates an export Service. writer may be nil, in which case
// AfterSnapshot does nothing.
func NewService(snapshots SnapshotSource, holdings HoldingLister, writer SnapshotWriter) *Service {
	return &Service{snapshots: snapshots, holdings: holdings, writer: writer}
}

// Workbook writes every snapshot and the current holdings as XLSX to w.
func (s *Service) Workbook(ctx context.Context, w io.Writer) error {
	snaps, err := s.snapshots.Since(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	holdings, err := s.holdings.List(ctx, "")
	if err != nil {
		return fmt.Errorf("loading holdings: %w", err)
	}
	return WriteWorkbook(w, snaps, holdings)
}

// AfterSnapshot pushes the snapshot history, including snap, to the writer.
func (s *Service) AfterSnapshot(ctx context.Context, snap domain.DailySnapshot) error {
	if s.writer == nil {
		return nil
	}

	snaps, err := s.snapshots.Since(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("loading snapshots: %w", err)
	}
	if err := s.writer.WriteSnapshots(ctx, snaps); err != nil {
		return fmt.Errorf("exporting snapshots: %w", err)
	}

	slog.Info("export: snapshots written", "date", snap.Date.Format(domain.DateLayout), "rows", len(snaps))
	return nil
}
