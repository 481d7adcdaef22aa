package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/report"
)

type statementFunc func(ctx context.Context, accountID string, data []byte) (*ofx.Report, error)

func (h *Handler) analyzeOFX(c *gin.Context) {
	h.statement(c, h.svc.AnalyzeOFX, "Extrato analisado.")
}

// importOFX grava os lançamentos novos. ?format=xlsx devolve a planilha.
func (h *Handler) importOFX(c *gin.Context) {
	h.statement(c, h.svc.ImportOFX, "Extrato importado.")
}

func (h *Handler) statement(c *gin.Context, run statementFunc, message string) {
	data, err := readUpload(c, h.opts.MaxOFXBytes)
	if err != nil {
		respondUploadError(c, err)
		return
	}

	rep, err := run(c.Request.Context(), h.accountID(c), data)
	if err != nil {
		respondError(c, err)
		return
	}

	if wantsXLSX(c) {
		writeOFXReport(c, rep)
		return
	}
	if rep.Rejected > 0 {
		warning(c, rep, fmt.Sprintf("%s %d linha(s) rejeitada(s).", message, rep.Rejected))
		return
	}
	success(c, rep, message)
}

// accountID: query, depois campo do form, depois a conta padrão.
func (h *Handler) accountID(c *gin.Context) string {
	if v := c.Query("account_id"); v != "" {
		return v
	}
	if v := c.PostForm("account_id"); v != "" {
		return v
	}
	return h.opts.DefaultAccountID
}

func (h *Handler) reconcile(c *gin.Context) {
	var req ofx.ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Requisição inválida.", err.Error())
		return
	}
	// a empresa vem sempre da configuração do serviço
	req.CompanyID = ""
	if req.AccountID == "" {
		req.AccountID = h.opts.DefaultAccountID
	}

	mv, err := h.svc.Reconcile(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, mv, "Lançamento conciliado.")
}

func writeOFXReport(c *gin.Context, rep *ofx.Report) {
	var buf bytes.Buffer
	if err := report.WriteOFX(&buf, rep); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=extrato_%s.xlsx", rep.Statement.AccountID))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}
