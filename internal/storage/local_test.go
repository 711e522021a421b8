package storage

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveReport(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	at := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	rel, err := s.SaveReport([]byte("contenido"), "reporte_deudas_2024-03-15.xlsx", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "2024", "03", "reporte_deudas_2024-03-15.xlsx"), rel)
	assert.True(t, s.Exists(rel))

	f, err := s.Download(rel)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "contenido", string(data))

	// same name replaces the previous archive
	_, err = s.SaveReport([]byte("nuevo"), "reporte_deudas_2024-03-15.xlsx", at)
	require.NoError(t, err)
	reports, err := s.ListReports()
	require.NoError(t, err)
	assert.Equal(t, []string{rel}, reports)
}

func TestLocalStorage_SaveReportStripsDirectories(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := s.SaveReport([]byte("x"), "../../escape.csv", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("reports", "2024", "01", "escape.csv"), rel)

	_, err = s.SaveReport([]byte("x"), "", time.Now())
	assert.Error(t, err)
}

func TestLocalStorage_ListReportsEmpty(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	reports, err := s.ListReports()
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestLocalStorage_Delete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := s.SaveReport([]byte("x"), "a.pdf", time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Delete(rel))
	assert.False(t, s.Exists(rel))
}
