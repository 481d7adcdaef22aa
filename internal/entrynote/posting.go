package entrynote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fiscal-intake/internal/productlink"
)

// NoteWriter grava a nota com itens e parcelas (insert ou update).
type NoteWriter interface {
	SaveNote(ctx context.Context, n *Note) error
}

// StockMove é a entrada de estoque de um item, em unidade interna.
type StockMove struct {
	ProductID string
	ItemID    string
	Quantity  float64
	Unit      string
	UnitCost  float64
}

// InventoryWriter aplica as entradas de estoque e marca a nota como lançada
// na mesma operação.
type InventoryWriter interface {
	ApplyEntry(ctx context.Context, companyID, noteID string, moves []StockMove) error
}

type Payable struct {
	ID          string
	CompanyID   string
	SupplierID  string
	NoteID      string
	Installment string
	Description string
	IssueDate   string
	DueDate     string
	Value       float64
}

type PayableWriter interface {
	CreatePayables(ctx context.Context, payables []Payable) error
}

type PostResult struct {
	NoteID         string
	Moves          int
	Payables       []Payable
	PayablesFailed bool
}

type Poster struct {
	notes     NoteWriter
	inventory InventoryWriter
	payables  PayableWriter
	now       func() time.Time
}

func NewPoster(notes NoteWriter, inventory InventoryWriter, payables PayableWriter) *Poster {
	return &Poster{notes: notes, inventory: inventory, payables: payables, now: time.Now}
}

// Post valida a nota e executa em sequência: gravar a nota (se ainda não
// gravada), dar entrada no estoque e criar as contas a pagar.
//
// Se as contas a pagar falharem, a nota continua lançada e o estoque não é
// desfeito: o resultado vem junto com ErrPayablesFailed.
func (p *Poster) Post(ctx context.Context, n *Note, opts PostOptions) (*PostResult, error) {
	if err := n.CheckPostable(opts); err != nil {
		return nil, err
	}

	if !n.Persisted {
		if err := p.notes.SaveNote(ctx, n); err != nil {
			return nil, fmt.Errorf("erro gravando nota: %w", err)
		}
		n.Persisted = true
	}

	moves := stockMoves(n)
	if err := p.inventory.ApplyEntry(ctx, n.CompanyID, n.ID, moves); err != nil {
		return nil, fmt.Errorf("erro lançando estoque: %w", err)
	}
	n.Status = StatusPosted

	res := &PostResult{NoteID: n.ID, Moves: len(moves)}
	slog.Info("nota de entrada lançada",
		"nota_id", n.ID,
		"numero", n.Header.Number,
		"serie", n.Header.Series,
		"itens", len(n.Items),
		"movimentos", len(moves),
	)

	payables := p.buildPayables(n)
	if len(payables) == 0 {
		return res, nil
	}
	if err := p.payables.CreatePayables(ctx, payables); err != nil {
		res.PayablesFailed = true
		slog.Error("nota lançada, mas contas a pagar falharam",
			"nota_id", n.ID,
			"parcelas", len(payables),
			"err", err,
		)
		return res, fmt.Errorf("%w: %v", ErrPayablesFailed, err)
	}
	res.Payables = payables
	return res, nil
}

func stockMoves(n *Note) []StockMove {
	var moves []StockMove
	for _, it := range n.Items {
		if it.LinkStatus == productlink.StatusIgnored || it.LinkedProductID == "" {
			continue
		}
		moves = append(moves, StockMove{
			ProductID: it.LinkedProductID,
			ItemID:    it.ID,
			Quantity:  it.InternalQuantity,
			Unit:      it.InternalUnit,
			UnitCost:  it.InternalUnitPrice,
		})
	}
	return moves
}

// Uma conta a pagar por parcela, emitida hoje, com vencimento nunca antes de hoje.
func (p *Poster) buildPayables(n *Note) []Payable {
	today := p.now().Format("2006-01-02")
	out := make([]Payable, 0, len(n.Installments))
	for _, inst := range n.Installments {
		due := inst.DueDate
		if due == "" || due < today {
			due = today
		}
		out = append(out, Payable{
			ID:          uuid.NewString(),
			CompanyID:   n.CompanyID,
			SupplierID:  n.Header.SupplierID,
			NoteID:      n.ID,
			Installment: inst.Number,
			Description: fmt.Sprintf("NF %s/%s parcela %s - %s", n.Header.Number, n.Header.Series, inst.Number, n.Header.SupplierName),
			IssueDate:   today,
			DueDate:     due,
			Value:       inst.Value,
		})
	}
	return out
}
