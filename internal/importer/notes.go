package importer

import (
	"context"
	"fmt"
	"log/slog"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/productlink"
)

// ItemUpdate traz os campos editáveis de um item. Campo nil não é alterado.
// Os campos fiscais só valem para item digitado; em item importado voltam
// entrynote.ErrFieldLocked.
type ItemUpdate struct {
	InternalQuantity *float64 `json:"internal_quantity"`
	ConversionFactor *float64 `json:"conversion_factor"`
	InternalUnit     *string  `json:"internal_unit"`

	FiscalQuantity  *float64 `json:"fiscal_quantity"`
	FiscalUnitPrice *float64 `json:"fiscal_unit_price"`
	NCM             *string  `json:"ncm"`
	Discount        *float64 `json:"discount"`
}

// Empty indica que nenhum campo foi enviado.
func (u ItemUpdate) Empty() bool {
	return u.InternalQuantity == nil && u.ConversionFactor == nil && u.InternalUnit == nil &&
		u.FiscalQuantity == nil && u.FiscalUnitPrice == nil && u.NCM == nil && u.Discount == nil
}

// HeaderUpdate altera campos texto do cabeçalho e as despesas acessórias.
type HeaderUpdate struct {
	Fields    map[entrynote.HeaderField]string `json:"fields"`
	Freight   *float64                         `json:"freight"`
	Insurance *float64                         `json:"insurance"`
	Other     *float64                         `json:"other_expenses"`
}

func (s *Service) Note(ctx context.Context, noteID string) (*entrynote.Note, error) {
	return s.deps.Notes.LoadNote(ctx, s.opts.CompanyID, noteID)
}

// editNote carrega a nota, aplica fn e grava. Nota fechada não é gravada.
func (s *Service) editNote(ctx context.Context, noteID string, fn func(n *entrynote.Note) error) (*entrynote.Note, error) {
	n, err := s.Note(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if !n.Status.Open() {
		return nil, entrynote.ErrNoteClosed
	}
	if err := fn(n); err != nil {
		return nil, err
	}
	if err := s.deps.Notes.SaveNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateItem aplica os campos enviados na ordem: lado fiscal, unidade, depois
// quantidade interna ou fator. Com quantidade e fator juntos vale a quantidade.
func (s *Service) UpdateItem(ctx context.Context, noteID string, number int, upd ItemUpdate) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		if upd.NCM != nil {
			if err := n.SetNCM(number, *upd.NCM); err != nil {
				return err
			}
		}
		if upd.FiscalQuantity != nil {
			if err := n.SetFiscalQuantity(number, *upd.FiscalQuantity); err != nil {
				return err
			}
		}
		if upd.FiscalUnitPrice != nil {
			if err := n.SetFiscalUnitPrice(number, *upd.FiscalUnitPrice); err != nil {
				return err
			}
		}
		if upd.Discount != nil {
			if err := n.SetDiscount(number, *upd.Discount); err != nil {
				return err
			}
		}
		if upd.InternalUnit != nil {
			if err := n.SetInternalUnit(number, *upd.InternalUnit); err != nil {
				return err
			}
		}
		switch {
		case upd.InternalQuantity != nil:
			return n.SetInternalQuantity(number, *upd.InternalQuantity)
		case upd.ConversionFactor != nil:
			return n.SetConversionFactor(number, *upd.ConversionFactor)
		}
		return nil
	})
}

// UpdateHeader altera o cabeçalho. Campos vindos do XML recusam a edição.
func (s *Service) UpdateHeader(ctx context.Context, noteID string, upd HeaderUpdate) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		return applyHeader(n, upd)
	})
}

func applyHeader(n *entrynote.Note, upd HeaderUpdate) error {
	for field, value := range upd.Fields {
		if err := n.SetHeader(field, value); err != nil {
			return err
		}
	}
	if upd.Freight == nil && upd.Insurance == nil && upd.Other == nil {
		return nil
	}
	freight, insurance, other := n.Header.Freight, n.Header.Insurance, n.Header.OtherExpenses
	if upd.Freight != nil {
		freight = *upd.Freight
	}
	if upd.Insurance != nil {
		insurance = *upd.Insurance
	}
	if upd.Other != nil {
		other = *upd.Other
	}
	return n.SetExpenses(freight, insurance, other)
}

// ManualNote é a nota digitada sem XML: cabeçalho e itens opcionais.
type ManualNote struct {
	Header HeaderUpdate           `json:"header"`
	Items  []entrynote.ManualItem `json:"items"`
}

// CreateNote grava uma nota digitada. Todos os campos ficam user_entered; sem
// nenhum dado a nota nasce em rascunho vazio.
func (s *Service) CreateNote(ctx context.Context, m ManualNote) (*entrynote.Note, error) {
	n := entrynote.New(s.opts.CompanyID)
	n.Header.Kind = fiscal.KindNFe
	if err := applyHeader(n, m.Header); err != nil {
		return nil, err
	}
	for _, mi := range m.Items {
		if _, err := n.AddItem(mi); err != nil {
			return nil, err
		}
	}
	n.Recompute()

	if err := s.deps.Notes.SaveNote(ctx, n); err != nil {
		return nil, err
	}
	n.Persisted = true

	slog.Info("nota de entrada digitada criada",
		"nota_id", n.ID,
		"numero", n.Header.Number,
		"itens", len(n.Items),
		"status", n.Status,
	)
	return n, nil
}

// AddItem inclui um item digitado, já vinculado ao produto escolhido.
func (s *Service) AddItem(ctx context.Context, noteID string, m entrynote.ManualItem) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		_, err := n.AddItem(m)
		return err
	})
}

func (s *Service) RemoveItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		return n.RemoveItem(number)
	})
}

func (s *Service) Suggestions(ctx context.Context, noteID string, number int) ([]productlink.Suggestion, error) {
	n, err := s.Note(ctx, noteID)
	if err != nil {
		return nil, err
	}
	it, err := n.Item(number)
	if err != nil {
		return nil, err
	}
	return s.links.Suggest(ctx, s.opts.CompanyID, it.Descriptor())
}

// LinkItem grava o vínculo escolhido. created indica produto cadastrado na hora.
func (s *Service) LinkItem(ctx context.Context, noteID string, number int, productID string, created bool) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		it, err := n.Item(number)
		if err != nil {
			return err
		}
		_, err = s.links.Confirm(ctx, s.opts.CompanyID, &it.Target, it.Descriptor(), productID, created)
		return err
	})
}

func (s *Service) IgnoreItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		it, err := n.Item(number)
		if err != nil {
			return err
		}
		_, err = s.links.Ignore(ctx, s.opts.CompanyID, &it.Target, it.Descriptor())
		return err
	})
}

// UnlinkItem devolve o item a pendente; o vínculo salvo continua valendo
// para as próximas notas.
func (s *Service) UnlinkItem(ctx context.Context, noteID string, number int) (*entrynote.Note, error) {
	return s.editNote(ctx, noteID, func(n *entrynote.Note) error {
		it, err := n.Item(number)
		if err != nil {
			return err
		}
		productlink.Reopen(&it.Target)
		return nil
	})
}

// PostNote lança a nota. Com ErrPayablesFailed o resultado também volta
// preenchido: a nota ficou lançada.
func (s *Service) PostNote(ctx context.Context, noteID string, opts entrynote.PostOptions) (*entrynote.PostResult, error) {
	n, err := s.Note(ctx, noteID)
	if err != nil {
		return nil, err
	}
	res, err := s.poster.Post(ctx, n, opts)
	if err != nil && res == nil {
		slog.Warn("nota não lançada", "nota_id", noteID, "err", err)
	}
	return res, err
}

func (s *Service) CancelNote(ctx context.Context, noteID string) error {
	n, err := s.Note(ctx, noteID)
	if err != nil {
		return err
	}
	if err := n.Cancel(); err != nil {
		return err
	}
	if err := s.deps.Notes.UpdateNoteStatus(ctx, s.opts.CompanyID, noteID, n.Status); err != nil {
		return fmt.Errorf("erro cancelando nota %s: %w", noteID, err)
	}
	slog.Info("nota de entrada cancelada", "nota_id", noteID, "numero", n.Header.Number)
	return nil
}
