package services

import (
	"github.com/sjperalta/tesoreria-api/internal/config"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/jobs"
	"github.com/sjperalta/tesoreria-api/internal/repository"
	"github.com/sjperalta/tesoreria-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Debt   *DebtService
	Export *ExportService
	Job    *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, store *storage.LocalStorage, publisher events.Publisher, cfg *config.Config) *Services {
	debtSvc := NewDebtService(repos.Debt, publisher, cfg.PaymentMaxRetries)
	exportSvc := NewExportService(store)

	return &Services{
		Debt:   debtSvc,
		Export: exportSvc,
		Job:    NewJobService(worker, debtSvc, exportSvc),
	}
}
