package importer

import (
	"context"
	"errors"
	"time"

	"fiscal-intake/internal/metrics"
	"fiscal-intake/internal/ofx"
)

// AnalyzeOFX classifica e sugere baixas sem gravar nada.
func (s *Service) AnalyzeOFX(ctx context.Context, accountID string, data []byte) (*ofx.Report, error) {
	return s.ofx.Analyze(ctx, s.opts.CompanyID, accountID, data)
}

// ImportOFX grava os lançamentos novos do extrato e devolve o relatório com
// as sugestões de baixa.
func (s *Service) ImportOFX(ctx context.Context, accountID string, data []byte) (*ofx.Report, error) {
	start := time.Now()
	rep, err := s.ofx.ImportStatement(ctx, s.opts.CompanyID, accountID, data)

	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, ofx.ErrNotOFX), errors.Is(err, ofx.ErrInputTooLarge), errors.Is(err, ofx.ErrMissingAccount):
		status = metrics.StatusParseError
	case err != nil:
		status = metrics.StatusDBError
	}
	metrics.ObserveDocument(status, SourceOFX, time.Since(start))
	if err != nil {
		return nil, err
	}

	metrics.ObserveOFX(string(ofx.StatusNew), rep.New)
	metrics.ObserveOFX(string(ofx.StatusDuplicated), rep.Duplicated)
	metrics.ObserveOFX(string(ofx.StatusReconciled), rep.Reconciled)
	metrics.ObserveOFX("rejected", rep.Rejected)
	return rep, nil
}

// Reconcile confirma uma baixa sugerida (ou escolhida) pelo usuário.
func (s *Service) Reconcile(ctx context.Context, req ofx.ReconcileRequest) (*ofx.Movement, error) {
	if req.CompanyID == "" {
		req.CompanyID = s.opts.CompanyID
	}
	return s.ofx.Reconcile(ctx, req)
}
