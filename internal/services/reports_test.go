package services

import (
	"context"
	"io"
	"testing"

	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportService_ReportLifecycle(t *testing.T) {
	svc := newTestExportService(t)
	ctx := context.Background()

	archived, err := svc.ArchiveSummary(ctx, exportFixture())
	require.NoError(t, err)

	reports, err := svc.ListReports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"reports/2024/03/reporte_deudas_2024-03-15.xlsx"}, reports)

	f, info, err := svc.OpenReport(ctx, archived)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "reporte_deudas_2024-03-15.xlsx", info.Name())
	assert.Equal(t, info.Size(), int64(len(data)))

	require.NoError(t, svc.DeleteReport(ctx, archived))
	reports, err = svc.ListReports(ctx)
	require.NoError(t, err)
	assert.Empty(t, reports)

	_, _, err = svc.OpenReport(ctx, archived)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteReport(ctx, archived), apperrors.ErrNotFound)
}

func TestExportService_ReportPathsStayInsideReports(t *testing.T) {
	svc := newTestExportService(t)
	ctx := context.Background()
	_, err := svc.ArchiveSummary(ctx, exportFixture())
	require.NoError(t, err)

	for _, p := range []string{
		"../secret.xlsx",
		"reports/../../secret.xlsx",
		"/etc/passwd",
		"reports",
		"reports/2024/03",
		"",
	} {
		_, _, err := svc.OpenReport(ctx, p)
		assert.ErrorIs(t, err, apperrors.ErrNotFound, p)
		assert.ErrorIs(t, svc.DeleteReport(ctx, p), apperrors.ErrNotFound, p)
	}

	reports, err := svc.ListReports(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}
