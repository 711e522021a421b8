package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/tesoreria-api/internal/models"
	"github.com/sjperalta/tesoreria-api/internal/storage"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Export filenames
const (
	SummaryPDFFilename = "reporte-general-deudas.pdf"
	summarySheet       = "Deudas"
	paymentsSheet      = "Abonos"
	displayDateLayout  = "02/01/2006"
)

// PaymentHistoryRow is one flattened payment
type PaymentHistoryRow struct {
	Date   time.Time
	Amount decimal.Decimal
	Note   string
}

// DebtSummaryRow is one flattened debt
type DebtSummaryRow struct {
	Name         string
	Holder       string
	Principal    decimal.Decimal
	Outstanding  decimal.Decimal
	PaidFraction decimal.Decimal
}

// PaymentHistoryRows flattens the payments of a debt in insertion order
func PaymentHistoryRows(debt *models.Debt) []PaymentHistoryRow {
	rows := make([]PaymentHistoryRow, 0, len(debt.Payments))
	for _, p := range debt.Payments {
		rows = append(rows, PaymentHistoryRow{Date: p.Date, Amount: p.Amount, Note: p.Note})
	}
	return rows
}

// SummaryRows flattens each debt into one row. Totals are not included, see SummaryTotals.
func SummaryRows(debts []models.Debt) []DebtSummaryRow {
	rows := make([]DebtSummaryRow, 0, len(debts))
	for i := range debts {
		d := &debts[i]
		rows = append(rows, DebtSummaryRow{
			Name:         d.Name,
			Holder:       d.Holder,
			Principal:    d.Principal,
			Outstanding:  d.OutstandingBalance,
			PaidFraction: PaidFraction(d),
		})
	}
	return rows
}

// SummaryTotals returns the totals row appended by the summary sinks
func SummaryTotals(debts []models.Debt) LedgerTotals {
	return SummarizeLedger(debts)
}

// ExportService renders ledger data as XLSX, PDF and CSV documents
type ExportService struct {
	storage *storage.LocalStorage
	now     func() time.Time
}

func NewExportService(store *storage.LocalStorage) *ExportService {
	return &ExportService{storage: store, now: time.Now}
}

// SummaryFilename returns the dated name of the summary spreadsheet
func (s *ExportService) SummaryFilename(ext string) string {
	return fmt.Sprintf("reporte_deudas_%s.%s", s.now().Format(models.DateLayout), ext)
}

// DebtFilename returns deuda-<slug>.<ext> for a single debt
func DebtFilename(debt *models.Debt, ext string) string {
	return fmt.Sprintf("deuda-%s.%s", slugify(debt.Name), ext)
}

func (s *ExportService) SummaryCSV(ctx context.Context, debts []models.Debt) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write([]string{"Nombre", "Titular", "Total", "Pendiente", "Pagado"})
	for _, row := range SummaryRows(debts) {
		_ = writer.Write([]string{
			row.Name,
			row.Holder,
			row.Principal.StringFixed(2),
			row.Outstanding.StringFixed(2),
			formatPercent(row.PaidFraction),
		})
	}

	totals := SummaryTotals(debts)
	_ = writer.Write([]string{""})
	_ = writer.Write([]string{"Total Deuda", totals.TotalPrincipal.StringFixed(2)})
	_ = writer.Write([]string{"Total Pendiente", totals.TotalOutstanding.StringFixed(2)})
	_ = writer.Write([]string{"Total Pagado", totals.TotalPaid.StringFixed(2)})

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), s.SummaryFilename("csv"), nil
}

func (s *ExportService) SummaryXLSX(ctx context.Context, debts []models.Debt) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, "", err
	}
	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return nil, "", err
	}
	moneyStyle, err := newNumberStyle(f, numFmtMoney)
	if err != nil {
		return nil, "", err
	}
	percentStyle, err := newNumberStyle(f, numFmtPercent)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"Nombre", "Titular", "Total", "Pendiente", "Pagado"}
	if err := writeRow(f, summarySheet, 1, toAny(headers)); err != nil {
		return nil, "", err
	}
	if err := f.SetCellStyle(summarySheet, "A1", "E1", headerStyle); err != nil {
		return nil, "", err
	}

	row := 2
	for _, r := range SummaryRows(debts) {
		values := []any{r.Name, r.Holder, r.Principal.InexactFloat64(), r.Outstanding.InexactFloat64(), r.PaidFraction.InexactFloat64()}
		if err := writeRow(f, summarySheet, row, values); err != nil {
			return nil, "", err
		}
		row++
	}
	if row > 2 {
		if err := f.SetCellStyle(summarySheet, "C2", fmt.Sprintf("D%d", row-1), moneyStyle); err != nil {
			return nil, "", err
		}
		if err := f.SetCellStyle(summarySheet, "E2", fmt.Sprintf("E%d", row-1), percentStyle); err != nil {
			return nil, "", err
		}
	}

	totals := SummaryTotals(debts)
	row++
	footer := []struct {
		label string
		value decimal.Decimal
	}{
		{"Total Deuda", totals.TotalPrincipal},
		{"Total Pendiente", totals.TotalOutstanding},
		{"Total Pagado", totals.TotalPaid},
	}
	for _, line := range footer {
		if err := writeRow(f, summarySheet, row, []any{line.label, "", line.value.InexactFloat64()}); err != nil {
			return nil, "", err
		}
		cell := fmt.Sprintf("C%d", row)
		if err := f.SetCellStyle(summarySheet, cell, cell, moneyStyle); err != nil {
			return nil, "", err
		}
		row++
	}

	if err := f.SetColWidth(summarySheet, "A", "B", 28); err != nil {
		return nil, "", err
	}
	if err := f.SetColWidth(summarySheet, "C", "E", 16); err != nil {
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), s.SummaryFilename("xlsx"), nil
}

func (s *ExportService) DebtXLSX(ctx context.Context, debt *models.Debt) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", paymentsSheet); err != nil {
		return nil, "", err
	}
	headerStyle, err := newHeaderStyle(f)
	if err != nil {
		return nil, "", err
	}

	info := [][]any{
		{"Nombre", debt.Name},
		{"Titular", debt.Holder},
		{"Descripción", debt.Description},
		{"Cantidad Total", debt.Principal.InexactFloat64()},
		{"Saldo Pendiente", debt.OutstandingBalance.InexactFloat64()},
	}
	for i, values := range info {
		if err := writeRow(f, paymentsSheet, i+1, values); err != nil {
			return nil, "", err
		}
	}

	headerRow := len(info) + 2
	if err := writeRow(f, paymentsSheet, headerRow, []any{"Fecha", "Cantidad", "Observación"}); err != nil {
		return nil, "", err
	}
	if err := f.SetCellStyle(paymentsSheet, fmt.Sprintf("A%d", headerRow), fmt.Sprintf("C%d", headerRow), headerStyle); err != nil {
		return nil, "", err
	}

	for i, p := range PaymentHistoryRows(debt) {
		values := []any{p.Date.Format(displayDateLayout), p.Amount.InexactFloat64(), noteOrDash(p.Note)}
		if err := writeRow(f, paymentsSheet, headerRow+1+i, values); err != nil {
			return nil, "", err
		}
	}
	if err := f.SetColWidth(paymentsSheet, "A", "A", 18); err != nil {
		return nil, "", err
	}
	if err := f.SetColWidth(paymentsSheet, "B", "C", 30); err != nil {
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf.Bytes(), DebtFilename(debt, "xlsx"), nil
}

func (s *ExportService) SummaryPDF(ctx context.Context, debts []models.Debt) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr("Reporte General de Deudas"))
	pdf.Ln(14)

	widths := []float64{50, 45, 32, 32, 23}
	body := make([][]string, 0, len(debts))
	for _, r := range SummaryRows(debts) {
		body = append(body, []string{
			r.Name,
			r.Holder,
			formatMoney(r.Principal),
			formatMoney(r.Outstanding),
			formatPercent(r.PaidFraction),
		})
	}
	drawGrid(pdf, tr, widths, []string{"Nombre", "Titular", "Total", "Pendiente", "Pagado"}, body)

	totals := SummaryTotals(debts)
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 12)
	for _, line := range []string{
		"Total Deuda: " + formatMoney(totals.TotalPrincipal),
		"Total Pendiente: " + formatMoney(totals.TotalOutstanding),
		"Total Pagado: " + formatMoney(totals.TotalPaid),
	} {
		pdf.Cell(0, 10, tr(line))
		pdf.Ln(10)
	}

	data, err := outputPDF(pdf)
	if err != nil {
		return nil, "", err
	}
	return data, SummaryPDFFilename, nil
}

func (s *ExportService) DebtPDF(ctx context.Context, debt *models.Debt) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr("Detalles de Deuda"))
	pdf.Ln(14)

	pdf.SetFont("Arial", "", 12)
	for _, line := range []string{
		"Nombre: " + debt.Name,
		"Titular: " + debt.Holder,
		"Descripción: " + debt.Description,
		"Cantidad Total: " + formatMoney(debt.Principal),
		"Saldo Pendiente: " + formatMoney(debt.OutstandingBalance),
		"Son: " + AmountInWords(debt.OutstandingBalance),
	} {
		pdf.Cell(0, 10, tr(line))
		pdf.Ln(10)
	}

	history := PaymentHistoryRows(debt)
	if len(history) > 0 {
		pdf.Ln(4)
		body := make([][]string, 0, len(history))
		for _, p := range history {
			body = append(body, []string{p.Date.Format(displayDateLayout), formatMoney(p.Amount), noteOrDash(p.Note)})
		}
		drawGrid(pdf, tr, []float64{40, 45, 97}, []string{"Fecha", "Cantidad", "Observación"}, body)
	}

	data, err := outputPDF(pdf)
	if err != nil {
		return nil, "", err
	}
	return data, DebtFilename(debt, "pdf"), nil
}

// ArchiveSummary renders the summary spreadsheet and stores it under reports/
func (s *ExportService) ArchiveSummary(ctx context.Context, debts []models.Debt) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("report storage is not configured")
	}

	data, filename, err := s.SummaryXLSX(ctx, debts)
	if err != nil {
		return "", fmt.Errorf("failed to render summary: %w", err)
	}

	path, err := s.storage.SaveReport(data, filename, s.now())
	if err != nil {
		return "", err
	}

	logger.Info("ledger summary archived", "path", path, "debts", len(debts))
	return path, nil
}

// drawGrid renders a bordered table with a blue header row
func drawGrid(pdf *gofpdf.Fpdf, tr func(string) string, widths []float64, headers []string, body [][]string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(41, 128, 185)
	pdf.SetTextColor(255, 255, 255)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(0, 0, 0)
	for _, row := range body {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, fitText(pdf, tr(cell), widths[i]-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// fitText truncates s so it fits in width mm with the current font
func fitText(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	// s is already single-byte encoded by the translator
	b := []byte(s)
	for len(b) > 0 && pdf.GetStringWidth(string(b)+"...") > width {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}

func outputPDF(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// excelize built-in number formats
const (
	numFmtMoney   = 4  // #,##0.00
	numFmtPercent = 10 // 0.00%
)

func newNumberStyle(f *excelize.File, numFmt int) (int, error) {
	style, err := f.NewStyle(&excelize.Style{NumFmt: numFmt})
	if err != nil {
		return 0, fmt.Errorf("failed to create number style: %w", err)
	}
	return style, nil
}

func newHeaderStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#2980B9"}, Pattern: 1},
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func formatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// formatPercent renders a [0,1] fraction as a percentage with one decimal
func formatPercent(fraction decimal.Decimal) string {
	return fraction.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

func noteOrDash(note string) string {
	if strings.TrimSpace(note) == "" {
		return "-"
	}
	return note
}

// slugify lowercases name and joins its words with dashes. Characters that
// are unsafe in a download filename are dropped.
func slugify(name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '"' || r == '/' || r == '\\':
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, strings.ToLower(name))

	slug := strings.Join(strings.Fields(clean), "-")
	if slug == "" {
		return "sin-nombre"
	}
	return slug
}
