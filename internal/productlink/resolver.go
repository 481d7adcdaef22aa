package productlink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSuggestionLimit = 10
	maxParallelLookups     = 8
)

type Resolver struct {
	store   Store
	catalog Catalog
	limit   int
	now     func() time.Time
}

func NewResolver(store Store, catalog Catalog) *Resolver {
	return &Resolver{
		store:   store,
		catalog: catalog,
		limit:   defaultSuggestionLimit,
		now:     time.Now,
	}
}

// ResolveStored tenta o vínculo salvo de cada item pendente. As consultas são
// independentes e rodam em paralelo; cada goroutine só escreve no seu Target.
// Devolve quantos itens saíram de pendente.
func (r *Resolver) ResolveStored(ctx context.Context, companyID string, targets []*Target) (int, error) {
	hits := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)

	for i, t := range targets {
		if t == nil || t.LinkStatus.Resolved() {
			continue
		}
		key := t.key(companyID)
		if !key.Valid() {
			continue
		}
		g.Go(func() error {
			link, err := r.store.FindLink(gctx, key)
			if err != nil {
				return fmt.Errorf("erro buscando vínculo %s/%s: %w", key.SupplierTaxID, key.SupplierProductCode, err)
			}
			if link == nil {
				return nil
			}
			t.LinkID = link.ID
			if link.Ignored {
				t.LinkStatus = StatusIgnored
				t.LinkedProductID = ""
			} else {
				t.LinkStatus = StatusLinked
				t.LinkedProductID = link.ProductID
			}
			hits[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	resolved := 0
	for _, hit := range hits {
		if hit {
			resolved++
		}
	}
	slog.Debug("vínculos salvos aplicados", "empresa", companyID, "itens", len(targets), "resolvidos", resolved)
	return resolved, nil
}

// Confirm grava o vínculo escolhido pelo usuário (sugestão aceita, busca
// manual ou produto recém-criado) e marca o item.
func (r *Resolver) Confirm(ctx context.Context, companyID string, t *Target, d Descriptor, productID string, created bool) (*Link, error) {
	if t.LinkStatus.Resolved() {
		return nil, ErrAlreadyResolved
	}
	if productID == "" {
		return nil, ErrNoProduct
	}

	link, err := r.persist(ctx, companyID, t, d, productID, false)
	if err != nil {
		return nil, err
	}

	t.LinkID = link.ID
	t.LinkedProductID = productID
	t.LinkStatus = StatusLinked
	if created {
		t.LinkStatus = StatusCreated
	}
	return link, nil
}

// Ignore marca o item como sem produto (frete, serviço embutido) e grava o
// vínculo de ignorar para as próximas importações do mesmo fornecedor.
func (r *Resolver) Ignore(ctx context.Context, companyID string, t *Target, d Descriptor) (*Link, error) {
	if t.LinkStatus.Resolved() {
		return nil, ErrAlreadyResolved
	}

	link, err := r.persist(ctx, companyID, t, d, "", true)
	if err != nil {
		return nil, err
	}

	t.LinkID = link.ID
	t.LinkedProductID = ""
	t.LinkStatus = StatusIgnored
	return link, nil
}

// Reopen devolve o item a pendente, como ao reabrir o diálogo de vínculo.
func Reopen(t *Target) {
	t.LinkStatus = StatusPending
	t.LinkedProductID = ""
	t.LinkID = ""
}

func (r *Resolver) persist(ctx context.Context, companyID string, t *Target, d Descriptor, productID string, ignored bool) (*Link, error) {
	key := t.key(companyID)
	if !key.Valid() {
		return nil, ErrMissingKey
	}

	link := &Link{
		ID:          uuid.NewString(),
		Key:         key,
		ProductID:   productID,
		Description: d.Description,
		NCM:         d.NCM,
		GTIN:        d.GTIN,
		Unit:        d.Unit,
		Ignored:     ignored,
		UpdatedAt:   r.now(),
	}
	if err := r.store.UpsertLink(ctx, link); err != nil {
		return nil, fmt.Errorf("erro gravando vínculo %s/%s: %w", key.SupplierTaxID, key.SupplierProductCode, err)
	}

	slog.Info("vínculo de produto gravado",
		"fornecedor", key.SupplierTaxID,
		"codigo", key.SupplierProductCode,
		"produto", productID,
		"ignorado", ignored,
	)
	return link, nil
}
