package services

import (
	"sort"
	"strings"

	"github.com/sjperalta/tesoreria-api/internal/models"
)

// MaxPerPage caps the page size of debt listings
const MaxPerPage = 100

// DebtQuery filters and paginates an already loaded list of debts
type DebtQuery struct {
	Status  string
	Search  string
	Page    int
	PerPage int
}

// Normalized returns q with Page at least 1 and PerPage capped at MaxPerPage.
// A PerPage of zero or less still means no paging.
func (q DebtQuery) Normalized() DebtQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 0 {
		q.PerPage = 0
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// TotalPages returns the number of pages needed for total matches
func (q DebtQuery) TotalPages(total int) int {
	q = q.Normalized()
	if q.PerPage == 0 {
		return 1
	}
	return (total + q.PerPage - 1) / q.PerPage
}

// Apply returns the requested page of debts matching q and the number of matches before paging.
// Input order is preserved.
func (q DebtQuery) Apply(debts []models.Debt) ([]models.Debt, int) {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	matched := make([]models.Debt, 0, len(debts))
	for i := range debts {
		d := &debts[i]
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(d.Name), search) &&
			!strings.Contains(strings.ToLower(d.Holder), search) &&
			!strings.Contains(strings.ToLower(d.Description), search) {
			continue
		}
		matched = append(matched, *d)
	}

	total := len(matched)
	q = q.Normalized()
	if q.PerPage == 0 {
		return matched, total
	}

	// compare pages before multiplying so a huge page number cannot overflow
	if q.Page > q.TotalPages(total) {
		return []models.Debt{}, total
	}
	start := (q.Page - 1) * q.PerPage
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// SortPaymentsByDate returns a copy of payments ordered by date. Payments on
// the same day keep their insertion order.
func SortPaymentsByDate(payments []models.Payment) []models.Payment {
	sorted := append([]models.Payment(nil), payments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
