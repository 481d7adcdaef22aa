package ofx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound      = errors.New("lançamento do extrato não encontrado")
	ErrAlreadyReconciled = errors.New("lançamento já conciliado")
	ErrOpenItemNotFound  = errors.New("título em aberto não encontrado")
	ErrKindMismatch      = errors.New("débito só baixa conta a pagar e crédito só baixa conta a receber")
	ErrMissingAccount    = errors.New("conta bancária não informada")
)

// ItemStore guarda os lançamentos importados (itens de conciliação).
type ItemStore interface {
	KnownFITIDs(ctx context.Context, companyID, accountID string) (map[string]bool, error)
	SaveImport(ctx context.Context, imp *Import) error
	FindItem(ctx context.Context, companyID, accountID, fitid string) (*StoredItem, error)
}

// OpenItemSource lista títulos em aberto, do vencimento mais antigo para o
// mais novo. FindOpenItem devolve nil quando o título não existe ou já foi pago.
type OpenItemSource interface {
	OpenItems(ctx context.Context, companyID string, kind OpenItemKind) ([]OpenItem, error)
	FindOpenItem(ctx context.Context, companyID string, kind OpenItemKind, id string) (*OpenItem, error)
}

// LedgerTx são as três escritas da baixa, dentro de uma transação.
type LedgerTx interface {
	SettleOpenItem(ctx context.Context, companyID string, item OpenItem, paidOn string) error
	InsertMovement(ctx context.Context, m *Movement) error
	MarkItemMatched(ctx context.Context, companyID, accountID, fitid, movementID string) error
}

// Ledger executa fn numa transação: commit se fn não devolver erro.
type Ledger interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type Importer struct {
	items  ItemStore
	open   OpenItemSource
	ledger Ledger

	MaxBytes int64
}

func NewImporter(items ItemStore, open OpenItemSource, ledger Ledger) *Importer {
	return &Importer{items: items, open: open, ledger: ledger, MaxBytes: DefaultMaxBytes}
}

// Analyze faz o caminho sem escrita: ler, classificar, separar duplicados e
// sugerir baixas.
func (im *Importer) Analyze(ctx context.Context, companyID, accountID string, data []byte) (*Report, error) {
	st, err := Parse(data, im.MaxBytes)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		accountID = st.AccountID
	}
	if accountID == "" {
		return nil, ErrMissingAccount
	}
	st.AccountID = accountID

	for i := range st.Txs {
		st.Txs[i].Category = Classify(st.Txs[i])
	}

	known, err := im.items.KnownFITIDs(ctx, companyID, accountID)
	if err != nil {
		return nil, fmt.Errorf("erro consultando lançamentos importados: %w", err)
	}
	MarkDuplicates(st.Txs, known)

	payables, err := im.open.OpenItems(ctx, companyID, KindPayable)
	if err != nil {
		return nil, fmt.Errorf("erro listando contas a pagar: %w", err)
	}
	receivables, err := im.open.OpenItems(ctx, companyID, KindReceivable)
	if err != nil {
		return nil, fmt.Errorf("erro listando contas a receber: %w", err)
	}
	SuggestMatches(st.Txs, payables, receivables)

	rep := &Report{Statement: st, Txs: st.Txs}
	rep.count()
	return rep, nil
}

// ImportStatement analisa o extrato e grava o cabeçalho com os lançamentos
// novos. Sem lançamentos novos, nada é gravado.
func (im *Importer) ImportStatement(ctx context.Context, companyID, accountID string, data []byte) (*Report, error) {
	rep, err := im.Analyze(ctx, companyID, accountID, data)
	if err != nil {
		return nil, err
	}

	var fresh []Transaction
	for _, t := range rep.Txs {
		if t.Status == StatusNew {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) > 0 {
		sum := sha256.Sum256(data)
		imp := &Import{
			ID:        uuid.NewString(),
			CompanyID: companyID,
			AccountID: rep.Statement.AccountID,
			BankID:    rep.Statement.BankID,
			StartDate: rep.Statement.StartDate,
			EndDate:   rep.Statement.EndDate,
			FileHash:  hex.EncodeToString(sum[:]),
			Items:     fresh,
		}
		if err := im.items.SaveImport(ctx, imp); err != nil {
			return nil, fmt.Errorf("erro gravando importação do extrato: %w", err)
		}
		rep.ImportID = imp.ID
	}

	slog.Info("extrato importado",
		"empresa", companyID,
		"conta", rep.Statement.AccountID,
		"novos", rep.New,
		"duplicados", rep.Duplicated,
		"ja_importados", rep.Reconciled,
		"rejeitados", rep.Rejected,
		"sugestoes", rep.Suggested,
	)
	return rep, nil
}

// ReconcileRequest é a confirmação do usuário para um lançamento.
type ReconcileRequest struct {
	CompanyID  string       `json:"company_id"`
	AccountID  string       `json:"account_id"`
	FITID      string       `json:"fitid" binding:"required"`
	OpenItemID string       `json:"open_item_id" binding:"required"`
	Kind       OpenItemKind `json:"kind" binding:"required"`
}

// Reconcile baixa o título, grava o movimento financeiro e marca o lançamento
// como conciliado, tudo numa transação só.
func (im *Importer) Reconcile(ctx context.Context, req ReconcileRequest) (*Movement, error) {
	stored, err := im.items.FindItem(ctx, req.CompanyID, req.AccountID, req.FITID)
	if err != nil {
		return nil, fmt.Errorf("erro buscando lançamento %s: %w", req.FITID, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, req.FITID)
	}
	if stored.MovementID != "" {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyReconciled, req.FITID)
	}
	tx := stored.Tx
	if KindFor(tx.Type) != req.Kind {
		return nil, ErrKindMismatch
	}

	item, err := im.open.FindOpenItem(ctx, req.CompanyID, req.Kind, req.OpenItemID)
	if err != nil {
		return nil, fmt.Errorf("erro buscando título %s: %w", req.OpenItemID, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrOpenItemNotFound, req.OpenItemID)
	}

	mv := &Movement{
		ID:          uuid.NewString(),
		CompanyID:   req.CompanyID,
		AccountID:   req.AccountID,
		Kind:        tx.Type,
		Amount:      tx.Amount.Abs(),
		Date:        tx.PostedDate,
		Description: tx.Description(),
		Category:    tx.Category,
		FITID:       tx.FITID,
	}
	if item.Kind == KindPayable {
		mv.PayableID = item.ID
	} else {
		mv.ReceivableID = item.ID
	}
	if mv.Date == "" {
		mv.Date = time.Now().Format("2006-01-02")
	}

	err = im.ledger.WithinTx(ctx, func(ltx LedgerTx) error {
		if err := ltx.SettleOpenItem(ctx, req.CompanyID, *item, mv.Date); err != nil {
			return fmt.Errorf("erro baixando título: %w", err)
		}
		if err := ltx.InsertMovement(ctx, mv); err != nil {
			return fmt.Errorf("erro gravando movimento: %w", err)
		}
		if err := ltx.MarkItemMatched(ctx, req.CompanyID, req.AccountID, tx.FITID, mv.ID); err != nil {
			return fmt.Errorf("erro marcando lançamento conciliado: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("lançamento conciliado",
		"empresa", req.CompanyID,
		"fitid", tx.FITID,
		"titulo", item.ID,
		"tipo", item.Kind,
		"valor", mv.Amount.StringFixed(2),
	)
	return mv, nil
}
