package handlers

import (
	"context"

	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health *HealthHandler
	Debt   *DebtHandler
	Job    *JobHandler
	Report *ReportHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, broker *events.Broker, healthCheck func(ctx context.Context) error) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(healthCheck),
		Debt:   NewDebtHandler(svcs.Debt, svcs.Export, broker),
		Job:    NewJobHandler(svcs.Job),
		Report: NewReportHandler(svcs.Export),
	}
}
