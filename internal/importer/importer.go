// Package importer liga extração, validação, mapeamento e persistência nos
// fluxos usados pelo worker, pela API e pela CLI.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/metrics"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/productlink"
	"fiscal-intake/internal/sefaz"
	"fiscal-intake/internal/storage"
	"fiscal-intake/internal/validation"
)

var (
	ErrValidationFailed  = errors.New("documento reprovado na validação fiscal")
	ErrDuplicateDocument = errors.New("documento já importado")
)

// ValidationError carrega o relatório que reprovou o documento.
type ValidationError struct {
	Report *validation.Report
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Report.Summary())
}

// Summary resume o relatório com os códigos dos erros, para logs e para os
// cabeçalhos da DLQ.
func (e *ValidationError) Summary() string {
	codes := make([]string, 0, len(e.Report.Errors))
	for _, f := range e.Report.Errors {
		codes = append(codes, f.Code)
	}
	if len(codes) == 0 {
		return e.Report.Summary()
	}
	return e.Report.Summary() + ": " + strings.Join(codes, ", ")
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidationFailed {
		return true
	}
	return target == ErrDuplicateDocument && e.Report.HasCode(validation.CodeDuplicateDocument)
}

// Origem do documento, usada nas métricas.
const (
	SourceXML   = "xml"
	SourceZIP   = "zip"
	SourceAPI   = "api"
	SourceEntry = "entry"
	SourceCLI   = "cli"
	SourceSefaz = "sefaz"
	SourceOFX   = "ofx"
)

// NoteStore é a persistência da nota de entrada.
type NoteStore interface {
	entrynote.NoteWriter
	entrynote.InventoryWriter
	entrynote.PayableWriter
	LoadNote(ctx context.Context, companyID, id string) (*entrynote.Note, error)
	UpdateNoteStatus(ctx context.Context, companyID, noteID string, status entrynote.Status) error
}

// Deps são os colaboradores; storage.Store implementa todos menos o Gateway.
type Deps struct {
	Documents validation.DocumentLookup
	Suppliers entrynote.SupplierStore
	Notes     NoteStore
	Links     productlink.Store
	Catalog   productlink.Catalog
	OFXItems  ofx.ItemStore
	OpenItems ofx.OpenItemSource
	Ledger    ofx.Ledger
	Gateway   sefaz.Gateway
}

// StoreDeps preenche Deps a partir do store do Postgres.
func StoreDeps(st *storage.Store, gw sefaz.Gateway) Deps {
	return Deps{
		Documents: st,
		Suppliers: st,
		Notes:     st,
		Links:     st,
		Catalog:   st,
		OFXItems:  st,
		OpenItems: st,
		Ledger:    st,
		Gateway:   gw,
	}
}

type Options struct {
	CompanyID   string
	XSDPath     string
	MaxXMLBytes int64
	MaxOFXBytes int64
}

type Service struct {
	opts      Options
	deps      Deps
	validator *validation.Validator
	links     *productlink.Resolver
	mapper    *entrynote.Mapper
	poster    *entrynote.Poster
	ofx       *ofx.Importer
}

func New(deps Deps, opts Options) *Service {
	links := productlink.NewResolver(deps.Links, deps.Catalog)
	im := ofx.NewImporter(deps.OFXItems, deps.OpenItems, deps.Ledger)
	if opts.MaxOFXBytes > 0 {
		im.MaxBytes = opts.MaxOFXBytes
	}
	return &Service{
		opts:      opts,
		deps:      deps,
		validator: validation.New(deps.Documents, opts.CompanyID),
		links:     links,
		mapper:    entrynote.NewMapper(deps.Suppliers, links),
		poster:    entrynote.NewPoster(deps.Notes, deps.Notes, deps.Notes),
		ofx:       im,
	}
}

func (s *Service) CompanyID() string {
	return s.opts.CompanyID
}

// Preview é o resultado do fluxo de nota de entrada antes de gravar.
type Preview struct {
	Invoice *fiscal.ParsedInvoice `json:"invoice"`
	Report  *validation.Report    `json:"report"`
	Note    *entrynote.Note       `json:"note,omitempty"`
}

// Result é o resultado da importação avulsa.
type Result struct {
	Note   *entrynote.Note    `json:"note"`
	Report *validation.Report `json:"report"`
}

func (s *Service) extract(data []byte) (*fiscal.ParsedInvoice, error) {
	return fiscal.Extract(data, fiscal.Options{XSDPath: s.opts.XSDPath, MaxBytes: s.opts.MaxXMLBytes})
}

func observeReport(r *validation.Report) {
	metrics.ObserveFindings(len(r.Errors), len(r.Warnings), len(r.Corrections))
}

// PreviewXML é o fluxo da tela de entrada: divergência de total só gera
// aviso e nada é gravado. Com erro de validação a nota não é montada.
func (s *Service) PreviewXML(ctx context.Context, data []byte) (*Preview, error) {
	inv, err := s.extract(data)
	if err != nil {
		return nil, err
	}

	report, err := s.validator.Validate(ctx, inv, validation.Options{CorrectTotals: false})
	if err != nil {
		return nil, err
	}
	observeReport(report)

	p := &Preview{Invoice: inv, Report: report}
	if !report.IsValid() {
		return p, nil
	}

	if p.Note, err = s.mapper.Map(ctx, s.opts.CompanyID, inv); err != nil {
		return nil, err
	}
	return p, nil
}

// ImportXML é o fluxo avulso (worker, CLI, API): o total divergente é
// corrigido e a nota vai para o banco em rascunho junto com o XML.
func (s *Service) ImportXML(ctx context.Context, data []byte, source string) (*Result, error) {
	return s.importXML(ctx, data, source, true)
}

// CreateNoteFromXML grava a nota da tela de entrada. A validação é a mesma do
// PreviewXML: divergência de total só gera aviso e as parcelas ficam com o
// valor declarado no XML.
func (s *Service) CreateNoteFromXML(ctx context.Context, data []byte) (*Result, error) {
	return s.importXML(ctx, data, SourceEntry, false)
}

func (s *Service) importXML(ctx context.Context, data []byte, source string, correctTotals bool) (res *Result, err error) {
	start := time.Now()
	status := metrics.StatusSuccess
	defer func() {
		metrics.ObserveDocument(status, source, time.Since(start))
	}()

	inv, err := s.extract(data)
	if err != nil {
		status = metrics.StatusParseError
		return nil, err
	}

	report, err := s.validator.Validate(ctx, inv, validation.Options{CorrectTotals: correctTotals})
	if err != nil {
		status = metrics.StatusDBError
		return nil, err
	}
	observeReport(report)

	if !report.IsValid() {
		status = metrics.StatusValidationError
		if report.HasCode(validation.CodeDuplicateDocument) {
			status = metrics.StatusDuplicate
		}
		return &Result{Report: report}, &ValidationError{Report: report}
	}

	note, err := s.mapper.Map(ctx, s.opts.CompanyID, inv)
	if err != nil {
		status = metrics.StatusDBError
		return nil, err
	}

	if err := s.deps.Notes.SaveNote(ctx, note); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			status = metrics.StatusDuplicate
			return nil, fmt.Errorf("%w: %w", ErrDuplicateDocument, err)
		}
		status = metrics.StatusDBError
		return nil, err
	}
	note.Persisted = true

	slog.Info("documento fiscal importado",
		"nota_id", note.ID,
		"tipo", inv.Kind,
		"numero", inv.Number,
		"chave", inv.AccessKey,
		"fornecedor", inv.Supplier.TaxID,
		"itens", len(note.Items),
		"pendentes", note.PendingLinks(),
		"relatorio", report.Summary(),
		"total_corrigido", correctTotals,
		"origem", source,
	)
	return &Result{Note: note, Report: report}, nil
}

// FetchAndImport baixa o XML pela chave no gateway e segue o fluxo avulso.
func (s *Service) FetchAndImport(ctx context.Context, accessKey string) (*Result, error) {
	data, err := s.deps.Gateway.FetchXML(ctx, accessKey)
	if err != nil {
		return nil, fmt.Errorf("erro buscando XML da chave %s: %w", accessKey, err)
	}
	return s.ImportXML(ctx, data, SourceSefaz)
}

// Manifest repassa a manifestação do destinatário ao gateway.
func (s *Service) Manifest(ctx context.Context, accessKey string, event sefaz.ManifestEvent, justification string) error {
	return s.deps.Gateway.Manifest(ctx, accessKey, event, justification)
}
