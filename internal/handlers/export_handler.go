package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SAP-F-2025/form-exam-service/internal/services"
	"github.com/SAP-F-2025/form-exam-service/internal/utils"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportHandler struct {
	BaseHandler
	exportService services.ExportService
}

func NewExportHandler(exportService services.ExportService, logger utils.Logger) *ExportHandler {
	return &ExportHandler{
		BaseHandler:   NewBaseHandler(logger),
		exportService: exportService,
	}
}

// ExportResults streams the sessions of a form as an xlsx workbook, optionally
// filtered by ?status=, ?from= and ?to=
// @Router /api/v1/forms/{id}/results/export [get]
func (h *ExportHandler) ExportResults(c *gin.Context) {
	formID, ok := h.parseUintParam(c, "id")
	if !ok {
		return
	}

	filter, err := services.ParseExportFilter(c.Query("status"), c.Query("from"), c.Query("to"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogRequest(c, "Exporting form results", "form_id", formID, "status", filter.Status)

	data, err := h.exportService.ExportFormResults(c.Request.Context(), formID, filter)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("form-%d-results-%s.xlsx", formID, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}
