package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sjperalta/tesoreria-api/internal/jobs"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

// Ledger job intervals
const (
	SnapshotInterval = time.Hour
	ArchiveInterval  = 24 * time.Hour
)

type JobService struct {
	worker    *jobs.Worker
	debtSvc   *DebtService
	exportSvc *ExportService
}

func NewJobService(worker *jobs.Worker, debtSvc *DebtService, exportSvc *ExportService) *JobService {
	return &JobService{
		worker:    worker,
		debtSvc:   debtSvc,
		exportSvc: exportSvc,
	}
}

// ScheduleLedgerJobs registers the hourly ledger snapshot and the daily summary archive
func (s *JobService) ScheduleLedgerJobs() {
	s.worker.ScheduleEvery(SnapshotInterval, s.SnapshotLedger)
	s.worker.ScheduleEvery(ArchiveInterval, s.ArchiveLedger)
	logger.Info("ledger jobs scheduled", "snapshot_every", SnapshotInterval.String(), "archive_every", ArchiveInterval.String())
}

// SnapshotLedger logs the current ledger totals
func (s *JobService) SnapshotLedger(ctx context.Context) error {
	debts, err := s.debtSvc.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger snapshot: %w", err)
	}
	totals := SummarizeLedger(debts)
	logger.Info("ledger snapshot",
		"debts", totals.DebtCount,
		"open", totals.OpenCount,
		"settled", totals.SettledCount,
		"total_principal", totals.TotalPrincipal.StringFixed(2),
		"total_outstanding", totals.TotalOutstanding.StringFixed(2),
		"total_paid", totals.TotalPaid.StringFixed(2))
	return nil
}

// ArchiveLedger stores today's summary spreadsheet
func (s *JobService) ArchiveLedger(ctx context.Context) error {
	debts, err := s.debtSvc.List(ctx)
	if err != nil {
		return fmt.Errorf("ledger archive: %w", err)
	}
	if _, err := s.exportSvc.ArchiveSummary(ctx, debts); err != nil {
		return fmt.Errorf("ledger archive: %w", err)
	}
	return nil
}

// QueueArchive runs ArchiveLedger on the worker pool
func (s *JobService) QueueArchive() {
	s.worker.Enqueue(s.ArchiveLedger)
}

func (s *JobService) GetStatus() map[string]interface{} {
	stats := s.worker.GetStats()
	return map[string]interface{}{
		"active_jobs":    stats.ActiveJobs,
		"finished_jobs":  stats.FinishedJobs,
		"failed_jobs":    stats.FailedJobs,
		"queue_length":   stats.QueueLength,
		"max_concurrent": stats.MaxConcurrent,
	}
}
