package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/events"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/sjperalta/tesoreria-api/internal/services"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
	contentTypeCSV  = "text/csv; charset=utf-8"

	streamHeartbeat = 25 * time.Second
)

// CreateDebtRequest is the body of POST /debts
type CreateDebtRequest struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	Holder      string          `json:"holder" validate:"required,max=120"`
	Principal   decimal.Decimal `json:"principal" validate:"dgte=0,money"`
}

// UpdateDebtRequest is the body of PUT/PATCH /debts/:debt_id. Omitted fields are left untouched.
type UpdateDebtRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	Holder      *string          `json:"holder" validate:"omitempty,max=120"`
	Principal   *decimal.Decimal `json:"principal" validate:"omitempty,dgte=0,money"`
}

// AddPaymentRequest is the body of POST /debts/:debt_id/payments. Date defaults to today.
type AddPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"dgt=0,money"`
	Date   string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Note   string          `json:"note" validate:"max=500"`
}

type DebtHandler struct {
	debtService   *services.DebtService
	exportService *services.ExportService
	broker        *events.Broker
}

func NewDebtHandler(debtSvc *services.DebtService, exportSvc *services.ExportService, broker *events.Broker) *DebtHandler {
	return &DebtHandler{
		debtService:   debtSvc,
		exportService: exportSvc,
		broker:        broker,
	}
}

// @Summary List Debts
// @Description List debts newest first, optionally filtered by status or text and paginated
// @Tags Debts
// @Produce json
// @Param status query string false "open or settled"
// @Param search query string false "Matches name, holder or description"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page, 0 returns every debt" default(0)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts [get]
func (h *DebtHandler) Index(c *gin.Context) {
	query := services.DebtQuery{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	if query.Status != "" && query.Status != models.DebtStatusOpen && query.Status != models.DebtStatusSettled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Estado inválido (open, settled)"})
		return
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "0"))

	debts, err := h.debtService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	query = query.Normalized()
	page, total := query.Apply(debts)
	responses := make([]models.DebtResponse, 0, len(page))
	for i := range page {
		responses = append(responses, page[i].ToResponse())
	}

	body := gin.H{"debts": responses, "total": total}
	if query.PerPage > 0 {
		body["pagination"] = gin.H{
			"page":        query.Page,
			"per_page":    query.PerPage,
			"total":       total,
			"total_pages": query.TotalPages(total),
		}
	}
	c.JSON(http.StatusOK, body)
}

// @Summary Ledger Summary
// @Description Totals of principal, outstanding balance and paid amount over every debt
// @Tags Debts
// @Produce json
// @Success 200 {object} services.LedgerTotals
// @Security BearerAuth
// @Router /debts/summary [get]
func (h *DebtHandler) Summary(c *gin.Context) {
	debts, err := h.debtService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, services.SummarizeLedger(debts))
}

// @Summary Get Debt
// @Tags Debts
// @Produce json
// @Param debt_id path int true "Debt ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts/{debt_id} [get]
func (h *DebtHandler) Show(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	debt, err := h.debtService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debt": debt.ToResponse()})
}

// @Summary Create Debt
// @Tags Debts
// @Accept json
// @Produce json
// @Param debt body CreateDebtRequest true "Debt"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts [post]
func (h *DebtHandler) Create(c *gin.Context) {
	var req CreateDebtRequest
	if err := BindNestedOrFlat(c, "debt", &req); err != nil {
		respondError(c, err)
		return
	}

	debt, err := h.debtService.Create(c.Request.Context(), services.CreateDebtInput{
		Name:        req.Name,
		Description: req.Description,
		Holder:      req.Holder,
		Principal:   req.Principal,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"debt": debt.ToResponse()})
}

// @Summary Update Debt
// @Description Update name, description, holder or principal. Payments and the outstanding balance are not changed.
// @Tags Debts
// @Accept json
// @Produce json
// @Param debt_id path int true "Debt ID"
// @Param debt body UpdateDebtRequest true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts/{debt_id} [put]
func (h *DebtHandler) Update(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	var req UpdateDebtRequest
	if err := BindNestedOrFlat(c, "debt", &req); err != nil {
		respondError(c, err)
		return
	}

	debt, err := h.debtService.Update(c.Request.Context(), id, services.UpdateDebtInput{
		Name:        req.Name,
		Description: req.Description,
		Holder:      req.Holder,
		Principal:   req.Principal,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"debt": debt.ToResponse()})
}

// @Summary Delete Debt
// @Tags Debts
// @Produce json
// @Param debt_id path int true "Debt ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts/{debt_id} [delete]
func (h *DebtHandler) Delete(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	if err := h.debtService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Deuda eliminada"})
}

// @Summary Payment History
// @Description Payments of a debt in the order they were recorded, or by date with sort=date
// @Tags Payments
// @Produce json
// @Param debt_id path int true "Debt ID"
// @Param sort query string false "date"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts/{debt_id}/payments [get]
func (h *DebtHandler) Payments(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	debt, err := h.debtService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	payments := debt.Payments
	if c.Query("sort") == "date" {
		payments = services.SortPaymentsByDate(payments)
	}

	responses := make([]models.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		responses = append(responses, p.ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{
		"debt_id":             debt.ID,
		"payments":            responses,
		"total_paid":          services.TotalPaidForDebt(debt),
		"outstanding_balance": debt.OutstandingBalance,
	})
}

// @Summary Add Payment
// @Description Record a payment (abono). The amount may not exceed the outstanding balance.
// @Tags Payments
// @Accept json
// @Produce json
// @Param debt_id path int true "Debt ID"
// @Param payment body AddPaymentRequest true "Payment"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Security BearerAuth
// @Router /debts/{debt_id}/payments [post]
func (h *DebtHandler) AddPayment(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	var req AddPaymentRequest
	if err := BindNestedOrFlat(c, "payment", &req); err != nil {
		respondError(c, err)
		return
	}

	date := time.Now()
	if req.Date != "" {
		// format already checked by the datetime tag
		date, _ = time.Parse(models.DateLayout, req.Date)
	}

	debt, err := h.debtService.AddPayment(c.Request.Context(), id, services.AddPaymentInput{
		Amount: req.Amount,
		Date:   date,
		Note:   req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"debt": debt.ToResponse()})
}

// @Summary Export Ledger
// @Description Download the debt summary with totals
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "xlsx, pdf or csv" default(xlsx)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /debts/export [get]
func (h *DebtHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()
	debts, err := h.debtService.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		data        []byte
		filename    string
		contentType string
	)
	switch c.DefaultQuery("format", "xlsx") {
	case "xlsx":
		data, filename, err = h.exportService.SummaryXLSX(ctx, debts)
		contentType = contentTypeXLSX
	case "pdf":
		data, filename, err = h.exportService.SummaryPDF(ctx, debts)
		contentType = contentTypePDF
	case "csv":
		data, filename, err = h.exportService.SummaryCSV(ctx, debts)
		contentType = contentTypeCSV
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato inválido (xlsx, pdf, csv)"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	sendAttachment(c, data, filename, contentType)
}

// @Summary Export Debt
// @Description Download the detail and payment history of one debt
// @Tags Exports
// @Produce octet-stream
// @Param debt_id path int true "Debt ID"
// @Param format query string false "pdf or xlsx" default(pdf)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /debts/{debt_id}/export [get]
func (h *DebtHandler) ExportDebt(c *gin.Context) {
	id, ok := parseDebtID(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "pdf")
	if format != "pdf" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Formato inválido (pdf, xlsx)"})
		return
	}

	ctx := c.Request.Context()
	debt, err := h.debtService.FindByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		data     []byte
		filename string
	)
	contentType := contentTypePDF
	if format == "xlsx" {
		data, filename, err = h.exportService.DebtXLSX(ctx, debt)
		contentType = contentTypeXLSX
	} else {
		data, filename, err = h.exportService.DebtPDF(ctx, debt)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	sendAttachment(c, data, filename, contentType)
}

// @Summary Ledger Event Stream
// @Description Server-sent events for every committed ledger change. Clients re-fetch the list when an event arrives.
// @Tags Debts
// @Produce text/event-stream
// @Success 200 {object} events.Event
// @Security BearerAuth
// @Router /debts/stream [get]
func (h *DebtHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	queue := make(chan events.Event, 16)

	unsubscribe := h.broker.Subscribe(func(_ context.Context, ev events.Event) {
		select {
		case queue <- ev:
		default:
			logger.Warn("dropping ledger event for slow stream client", "type", ev.Type, "debt_id", ev.DebtID)
		}
	})
	defer unsubscribe()
	logger.Info("ledger stream opened", "subscribers", h.broker.Subscribers())
	defer logger.Info("ledger stream closed")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-queue:
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

func parseDebtID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("debt_id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de deuda inválido"})
		return 0, false
	}
	return uint(id), true
}

func sendAttachment(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, contentType, data)
}

// respondError maps ledger errors to HTTP responses
func respondError(c *gin.Context, err error) {
	var (
		validationErr   *apperrors.ValidationError
		insufficientErr *apperrors.InsufficientBalanceError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "field": validationErr.Field})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &insufficientErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":               apperrors.ErrInsufficientBalance.Error(),
			"outstanding_balance": insufficientErr.Outstanding,
		})
	case errors.Is(err, apperrors.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
		message := "Error interno del servidor"
		if errors.Is(err, apperrors.ErrMalformedRecord) {
			message = "La deuda almacenada tiene un formato inválido"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

