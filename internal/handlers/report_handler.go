package handlers

import (
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/tesoreria-api/internal/services"
	"github.com/sjperalta/tesoreria-api/internal/storage"
)

type ReportHandler struct {
	exportService *services.ExportService
}

func NewReportHandler(exportSvc *services.ExportService) *ReportHandler {
	return &ReportHandler{exportService: exportSvc}
}

// @Summary List archived reports
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /reports [get]
func (h *ReportHandler) Index(c *gin.Context) {
	reports, err := h.exportService.ListReports(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "total": len(reports)})
}

// @Summary Download an archived report
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param path path string true "Report path below reports/, e.g. 2024/03/reporte_deudas_2024-03-15.xlsx"
// @Success 200 {file} file
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /reports/{path} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	f, info, err := h.exportService.OpenReport(c.Request.Context(), reportParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	c.DataFromReader(http.StatusOK, info.Size(), reportContentType(info.Name()), f, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": info.Name()}),
	})
}

// @Summary Delete an archived report
// @Tags Reports
// @Produce json
// @Param path path string true "Report path below reports/"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /reports/{path} [delete]
func (h *ReportHandler) Delete(c *gin.Context) {
	if err := h.exportService.DeleteReport(c.Request.Context(), reportParam(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reporte eliminado"})
}

// reportParam maps the wildcard of /reports/*path back to the listed report path
func reportParam(c *gin.Context) string {
	return path.Join(storage.ReportsDir, c.Param("path"))
}

func reportContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx":
		return contentTypeXLSX
	case ".pdf":
		return contentTypePDF
	case ".csv":
		return contentTypeCSV
	default:
		return "application/octet-stream"
	}
}
