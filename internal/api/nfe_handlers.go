package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/report"
	"fiscal-intake/internal/sefaz"
)

// previewXML valida e monta a nota sem gravar. ?format=xlsx devolve a planilha
// do relatório.
func (h *Handler) previewXML(c *gin.Context) {
	data, err := readUpload(c, h.opts.MaxXMLBytes)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	p, err := h.svc.PreviewXML(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}

	if wantsXLSX(c) {
		var buf bytes.Buffer
		if err := report.WriteValidation(&buf, p.Invoice, p.Report); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=validacao_%s.xlsx", p.Invoice.Number))
		c.Data(http.StatusOK, report.ContentType, buf.Bytes())
		return
	}

	if !p.Report.IsValid() {
		failWithData(c, http.StatusUnprocessableEntity, p, p.Report.Summary())
		return
	}
	success(c, p, p.Report.Summary())
}

func (h *Handler) importXML(c *gin.Context) {
	data, err := readUpload(c, h.opts.MaxXMLBytes)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	res, err := h.svc.ImportXML(c.Request.Context(), data, importer.SourceAPI)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, res, "Documento importado. "+res.Report.Summary())
}

func (h *Handler) fetchXML(c *gin.Context) {
	res, err := h.svc.FetchAndImport(c.Request.Context(), c.Param("chave"))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, res, "Documento obtido na SEFAZ e importado.")
}

type manifestRequest struct {
	Event         sefaz.ManifestEvent `json:"evento" binding:"required,oneof=210200 210210 210220 210240"`
	Justification string              `json:"justificativa"`
}

func (h *Handler) manifest(c *gin.Context) {
	var req manifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}
	if err := h.svc.Manifest(c.Request.Context(), c.Param("chave"), req.Event, req.Justification); err != nil {
		respondError(c, err)
		return
	}
	success(c, nil, "Manifestação registrada.")
}
