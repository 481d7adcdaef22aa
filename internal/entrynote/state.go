package entrynote

import (
	"fmt"
	"strings"

	"fiscal-intake/internal/productlink"
)

type PostOptions struct {
	// ConfirmShrinkage aceita quantidade interna menor que a fiscal (quebra,
	// perda no recebimento).
	ConfirmShrinkage bool
}

// CheckPostable aplica as regras de lançamento na ordem: cabeçalho, itens,
// quantidades, perdas e vínculos.
func (n *Note) CheckPostable(opts PostOptions) error {
	if !n.Status.Open() {
		return ErrNoteClosed
	}

	var missing []string
	if n.Header.Number == "" {
		missing = append(missing, "número")
	}
	if n.Header.SupplierID == "" {
		missing = append(missing, "fornecedor")
	}
	if n.Header.IssueDate == "" {
		missing = append(missing, "data de emissão")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	if len(n.Items) == 0 {
		return ErrNoItems
	}

	var shrinkage []string
	for _, it := range n.Items {
		if it.FiscalQuantity <= 0 || it.InternalQuantity <= 0 {
			return fmt.Errorf("%w: item %d (fiscal %v, interna %v)",
				ErrInvalidQuantity, it.Number, it.FiscalQuantity, it.InternalQuantity)
		}
		if it.InternalQuantity < it.FiscalQuantity {
			shrinkage = append(shrinkage, fmt.Sprintf("item %d (%v de %v)", it.Number, it.InternalQuantity, it.FiscalQuantity))
		}
	}
	if len(shrinkage) > 0 && !opts.ConfirmShrinkage {
		return fmt.Errorf("%w: quantidade interna menor que a fiscal em %s",
			ErrConfirmationRequired, strings.Join(shrinkage, ", "))
	}

	return productlink.CheckAllResolved(n.LinkTargets())
}

// Cancel vale para qualquer estado antes do lançamento.
func (n *Note) Cancel() error {
	if !n.Status.Open() {
		return ErrNoteClosed
	}
	n.Status = StatusCancelled
	return nil
}
