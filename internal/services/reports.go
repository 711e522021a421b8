package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sjperalta/tesoreria-api/internal/apperrors"
	"github.com/sjperalta/tesoreria-api/internal/storage"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

var errNoReportStorage = errors.New("report storage is not configured")

// ListReports returns the archived report paths, slash separated
func (s *ExportService) ListReports(ctx context.Context) ([]string, error) {
	if s.storage == nil {
		return nil, errNoReportStorage
	}
	paths, err := s.storage.ListReports()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.ToSlash(p))
	}
	return out, nil
}

// OpenReport opens an archived report for reading. The caller closes the file.
func (s *ExportService) OpenReport(ctx context.Context, reportPath string) (*os.File, os.FileInfo, error) {
	rel, err := s.reportPath(reportPath)
	if err != nil {
		return nil, nil, err
	}

	if !s.storage.Exists(rel) {
		return nil, nil, reportNotFound(reportPath)
	}
	f, err := s.storage.Download(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, reportNotFound(reportPath)
		}
		return nil, nil, fmt.Errorf("failed to open report: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to open report: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, reportNotFound(reportPath)
	}
	return f, info, nil
}

// DeleteReport removes an archived report
func (s *ExportService) DeleteReport(ctx context.Context, reportPath string) error {
	rel, err := s.reportPath(reportPath)
	if err != nil {
		return err
	}
	f, _, err := s.OpenReport(ctx, rel)
	if err != nil {
		return err
	}
	f.Close()

	if err := s.storage.Delete(rel); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	logger.Info("report deleted", "path", rel)
	return nil
}

// reportPath confines p to the reports directory of the storage root
func (s *ExportService) reportPath(p string) (string, error) {
	if s.storage == nil {
		return "", errNoReportStorage
	}
	clean := strings.TrimPrefix(path.Clean("/"+p), "/")
	if !strings.HasPrefix(clean, storage.ReportsDir+"/") {
		return "", reportNotFound(p)
	}
	return clean, nil
}

func reportNotFound(p string) error {
	return fmt.Errorf("reporte %s: %w", p, apperrors.ErrNotFound)
}
