package productlink

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	links   map[Key]*Link
	lookups int
	failOn  string
}

func newMemStore() *memStore {
	return &memStore{links: map[Key]*Link{}}
}

func (m *memStore) FindLink(_ context.Context, key Key) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if key.SupplierProductCode == m.failOn {
		return nil, errors.New("timeout")
	}
	return m.links[key], nil
}

func (m *memStore) UpsertLink(_ context.Context, l *Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.links[l.Key]; ok {
		l.ID = prev.ID
	}
	cp := *l
	m.links[l.Key] = &cp
	return nil
}

type fakeCatalog struct {
	products []Product
	lastQ    CatalogQuery
}

func (f *fakeCatalog) SearchProducts(_ context.Context, q CatalogQuery) ([]Product, error) {
	f.lastQ = q
	return f.products, nil
}

const company = "empresa-1"

func TestResolveStored(t *testing.T) {
	store := newMemStore()
	store.links[Key{company, "123", "PB-001"}] = &Link{ID: "l1", ProductID: "prod-9"}
	store.links[Key{company, "123", "FRETE"}] = &Link{ID: "l2", Ignored: true}

	targets := []*Target{
		{SupplierTaxID: "123", SupplierProductCode: "PB-001", LinkStatus: StatusPending},
		{SupplierTaxID: "123", SupplierProductCode: "FRETE", LinkStatus: StatusPending},
		{SupplierTaxID: "123", SupplierProductCode: "NOVO", LinkStatus: StatusPending},
		{SupplierTaxID: "", SupplierProductCode: "SEM-CNPJ", LinkStatus: StatusPending},
		{SupplierTaxID: "123", SupplierProductCode: "JA", LinkStatus: StatusLinked, LinkedProductID: "p"},
	}

	r := NewResolver(store, &fakeCatalog{})
	n, err := r.ResolveStored(context.Background(), company, targets)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 3, store.lookups, "sem chave ou já resolvido não consulta")
	assert.Equal(t, StatusLinked, targets[0].LinkStatus)
	assert.Equal(t, "prod-9", targets[0].LinkedProductID)
	assert.Equal(t, "l1", targets[0].LinkID)
	assert.Equal(t, StatusIgnored, targets[1].LinkStatus)
	assert.Equal(t, StatusPending, targets[2].LinkStatus)
	assert.Equal(t, StatusPending, targets[3].LinkStatus)
}

func TestResolveStoredPropagatesError(t *testing.T) {
	store := newMemStore()
	store.failOn = "X"

	r := NewResolver(store, &fakeCatalog{})
	_, err := r.ResolveStored(context.Background(), company, []*Target{
		{SupplierTaxID: "1", SupplierProductCode: "X", LinkStatus: StatusPending},
	})
	assert.ErrorContains(t, err, "timeout")
}

func TestConfirmAndIgnore(t *testing.T) {
	store := newMemStore()
	r := NewResolver(store, &fakeCatalog{})
	ctx := context.Background()

	item := &Target{SupplierTaxID: "123", SupplierProductCode: "PB-001", LinkStatus: StatusPending}
	link, err := r.Confirm(ctx, company, item, Descriptor{Description: "PARA-BRISA", NCM: "70071100"}, "prod-1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusLinked, item.LinkStatus)
	assert.Equal(t, "prod-1", item.LinkedProductID)
	assert.Equal(t, link.ID, item.LinkID)
	assert.Equal(t, "70071100", store.links[Key{company, "123", "PB-001"}].NCM)

	_, err = r.Confirm(ctx, company, item, Descriptor{}, "prod-2", false)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	created := &Target{SupplierTaxID: "123", SupplierProductCode: "NOVO", LinkStatus: StatusPending}
	_, err = r.Confirm(ctx, company, created, Descriptor{}, "prod-3", true)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, created.LinkStatus)

	frete := &Target{SupplierTaxID: "123", SupplierProductCode: "FRETE", LinkStatus: StatusPending}
	_, err = r.Ignore(ctx, company, frete, Descriptor{Description: "FRETE"})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, frete.LinkStatus)
	assert.True(t, store.links[Key{company, "123", "FRETE"}].Ignored)

	// próxima importação do mesmo fornecedor/código já vem ignorada
	again := &Target{SupplierTaxID: "123", SupplierProductCode: "FRETE", LinkStatus: StatusPending}
	_, err = r.ResolveStored(ctx, company, []*Target{again})
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, again.LinkStatus)
}

func TestConfirmValidation(t *testing.T) {
	r := NewResolver(newMemStore(), &fakeCatalog{})
	ctx := context.Background()

	_, err := r.Confirm(ctx, company, &Target{SupplierTaxID: "1", SupplierProductCode: "A"}, Descriptor{}, "", false)
	assert.ErrorIs(t, err, ErrNoProduct)

	_, err = r.Confirm(ctx, company, &Target{SupplierProductCode: "A"}, Descriptor{}, "p", false)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestReopen(t *testing.T) {
	item := &Target{LinkStatus: StatusLinked, LinkedProductID: "p", LinkID: "l"}
	Reopen(item)
	assert.Equal(t, StatusPending, item.LinkStatus)
	assert.Empty(t, item.LinkedProductID)
}

func TestSuggestRanksAndExplains(t *testing.T) {
	catalog := &fakeCatalog{products: []Product{
		{ID: "a", Name: "Retrovisor Uno", NCM: "87081000"},
		{ID: "b", Name: "Para-brisa Gol G5 Verde", NCM: "70071100"},
		{ID: "c", Name: "Vidro porta Gol", NCM: "70071900"},
		{ID: "d", Name: "Parabrisa generico", NCM: "70071100", GTIN: "7891234567895"},
	}}
	r := NewResolver(newMemStore(), catalog)

	got, err := r.Suggest(context.Background(), company, Descriptor{
		Description: "PARA-BRISA GOL G5",
		NCM:         "7007.11.00",
		GTIN:        "7891234567895",
	})
	require.NoError(t, err)

	assert.Equal(t, "70071100", catalog.lastQ.NCM)
	assert.Equal(t, []string{"PARA", "BRISA", "GOL"}, catalog.lastQ.Terms)

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, "d", got[0].Product.ID)
	assert.Contains(t, got[0].Reason, "GTIN idêntico")
	assert.Equal(t, "b", got[1].Product.ID)
	assert.Contains(t, got[1].Reason, "mesmo NCM 70071100")
	assert.Contains(t, got[1].Reason, "palavras em comum")

	for _, s := range got {
		assert.NotEqual(t, "a", s.Product.ID, "sem sinal algum não aparece")
		assert.NotEmpty(t, s.Reason)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("Pára-brisa", "PARA BRISA"), 0.001)
	assert.Zero(t, similarity("", ""))
	assert.Less(t, similarity("PARA-BRISA", "RETROVISOR"), 0.5)
}

func TestSessionAndPostingGate(t *testing.T) {
	items := []*Target{
		{LinkStatus: StatusLinked, LinkedProductID: "p1"},
		{LinkStatus: StatusPending},
	}
	s := NewSession(items)

	assert.Len(t, s.Pending(), 1)
	err := s.Abandon(false)
	assert.ErrorIs(t, err, ErrPendingLinks)
	assert.NoError(t, s.Abandon(true))

	err = CheckAllResolved(items)
	require.ErrorIs(t, err, ErrPendingLinks)
	assert.Contains(t, err.Error(), "1 item(ns)")

	items[1].LinkStatus = StatusIgnored
	assert.NoError(t, CheckAllResolved(items))

	items[0].LinkedProductID = ""
	assert.ErrorIs(t, CheckAllResolved(items), ErrPendingLinks)
}
