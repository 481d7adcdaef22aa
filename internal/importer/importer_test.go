package importer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/productlink"
	"fiscal-intake/internal/sefaz"
	"fiscal-intake/internal/validation"
)

const (
	companyID = "empresa-1"
	accessKey = "35240312345678000195550010000012341000012345"
)

// Total declarado (1100) diverge da soma dos itens (1000).
const nfeXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe` + accessKey + `" versao="4.00">
      <ide>
        <natOp>COMPRA PARA COMERCIALIZACAO</natOp>
        <mod>55</mod>
        <serie>1</serie>
        <nNF>1234</nNF>
        <dhEmi>2024-03-10T10:00:00-03:00</dhEmi>
        <tpNF>1</tpNF>
        <finNFe>1</finNFe>
      </ide>
      <emit>
        <CNPJ>12345678000195</CNPJ>
        <xNome>VIDROS DISTRIBUIDORA LTDA</xNome>
      </emit>
      <dest>
        <CNPJ>98765432000110</CNPJ>
        <xNome>AUTO VIDROS LTDA</xNome>
      </dest>
      <det nItem="1">
        <prod>
          <cProd>PB-001</cProd>
          <cEAN>7891234567895</cEAN>
          <xProd>PARA-BRISA GOL G5</xProd>
          <NCM>70071100</NCM>
          <CFOP>1102</CFOP>
          <uCom>CX</uCom>
          <qCom>2.0000</qCom>
          <vUnCom>500.00</vUnCom>
          <vProd>1000.00</vProd>
        </prod>
      </det>
      <total>
        <ICMSTot>
          <vProd>1000.00</vProd>
          <vNF>1100.00</vNF>
        </ICMSTot>
      </total>
    </infNFe>
  </NFe>
</nfeProc>`

const statement = `OFXHEADER:100
DATA:OFXSGML
CHARSET:1252

<OFX>
<BANKMSGSRSV1><STMTTRNRS><STMTRS>
<CURDEF>BRL
<BANKACCTFROM><BANKID>341<ACCTID>12345-6</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301
<DTEND>20240331
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240315
<TRNAMT>-1100.00
<FITID>F001
<MEMO>PAGTO BOLETO VIDROS DIST
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240316
<TRNAMT>-9.90
<FITID>F002
<MEMO>TARIFA PACOTE SERVICOS
</STMTTRN>
</BANKTRANLIST>
</STMTRS></STMTTRNRS></BANKMSGSRSV1>
</OFX>
`

// memBackend implementa em memória tudo o que o storage.Store implementa.
type memBackend struct {
	mu sync.Mutex

	notes     map[string]*entrynote.Note
	suppliers []entrynote.Supplier
	links     map[productlink.Key]*productlink.Link
	products  []productlink.Product
	moves     []entrynote.StockMove
	payables  []entrynote.Payable

	items     map[string]*ofx.StoredItem
	open      []ofx.OpenItem
	settled   []string
	movements []*ofx.Movement

	failPayables error
}

func newMemBackend() *memBackend {
	return &memBackend{
		notes: map[string]*entrynote.Note{},
		links: map[productlink.Key]*productlink.Link{},
		items: map[string]*ofx.StoredItem{},
	}
}

func (m *memBackend) FindByAccessKey(_ context.Context, _ string, key string) (*validation.DocumentRef, error) {
	for _, n := range m.notes {
		if n.Header.AccessKey == key && n.Status != entrynote.StatusCancelled {
			return &validation.DocumentRef{ID: n.ID, Number: n.Header.Number, Series: n.Header.Series, AccessKey: key}, nil
		}
	}
	return nil, nil
}

func (m *memBackend) FindByNumberSeries(context.Context, string, string, string) (*validation.DocumentRef, error) {
	return nil, nil
}

func (m *memBackend) ListSuppliers(_ context.Context, companyID string) ([]entrynote.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entrynote.Supplier
	for _, s := range m.suppliers {
		if s.CompanyID == companyID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memBackend) CreateSupplier(_ context.Context, s *entrynote.Supplier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers = append(m.suppliers, *s)
	return nil
}

func (m *memBackend) SaveNote(_ context.Context, n *entrynote.Note) error {
	m.notes[n.ID] = n
	return nil
}

func (m *memBackend) LoadNote(_ context.Context, _ string, id string) (*entrynote.Note, error) {
	n, ok := m.notes[id]
	if !ok {
		return nil, errors.New("nota não encontrada")
	}
	n.Persisted = true
	return n, nil
}

func (m *memBackend) UpdateNoteStatus(_ context.Context, _ string, id string, status entrynote.Status) error {
	m.notes[id].Status = status
	return nil
}

func (m *memBackend) ApplyEntry(_ context.Context, _ string, id string, moves []entrynote.StockMove) error {
	m.notes[id].Status = entrynote.StatusPosted
	m.moves = append(m.moves, moves...)
	return nil
}

func (m *memBackend) CreatePayables(_ context.Context, p []entrynote.Payable) error {
	if m.failPayables != nil {
		return m.failPayables
	}
	m.payables = append(m.payables, p...)
	return nil
}

func (m *memBackend) FindLink(_ context.Context, key productlink.Key) (*productlink.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[key], nil
}

func (m *memBackend) UpsertLink(_ context.Context, l *productlink.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.Key] = l
	return nil
}

func (m *memBackend) SearchProducts(context.Context, productlink.CatalogQuery) ([]productlink.Product, error) {
	return m.products, nil
}

func (m *memBackend) KnownFITIDs(context.Context, string, string) (map[string]bool, error) {
	known := map[string]bool{}
	for id := range m.items {
		known[id] = true
	}
	return known, nil
}

func (m *memBackend) SaveImport(_ context.Context, imp *ofx.Import) error {
	for _, t := range imp.Items {
		m.items[t.FITID] = &ofx.StoredItem{ImportID: imp.ID, Tx: t}
	}
	return nil
}

func (m *memBackend) FindItem(_ context.Context, _, _, fitid string) (*ofx.StoredItem, error) {
	return m.items[fitid], nil
}

func (m *memBackend) OpenItems(_ context.Context, _ string, kind ofx.OpenItemKind) ([]ofx.OpenItem, error) {
	var out []ofx.OpenItem
	for _, it := range m.open {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memBackend) FindOpenItem(_ context.Context, _ string, kind ofx.OpenItemKind, id string) (*ofx.OpenItem, error) {
	for _, it := range m.open {
		if it.Kind == kind && it.ID == id {
			return &it, nil
		}
	}
	return nil, nil
}

func (m *memBackend) WithinTx(ctx context.Context, fn func(ofx.LedgerTx) error) error {
	return fn(m)
}

func (m *memBackend) SettleOpenItem(_ context.Context, _ string, item ofx.OpenItem, _ string) error {
	m.settled = append(m.settled, item.ID)
	return nil
}

func (m *memBackend) InsertMovement(_ context.Context, mv *ofx.Movement) error {
	m.movements = append(m.movements, mv)
	return nil
}

func (m *memBackend) MarkItemMatched(_ context.Context, _, _, fitid, movementID string) error {
	m.items[fitid].MovementID = movementID
	return nil
}

type fakeGateway struct {
	docs map[string]string
}

func (g fakeGateway) FetchXML(_ context.Context, key string) ([]byte, error) {
	doc, ok := g.docs[key]
	if !ok {
		return nil, sefaz.ErrDocumentNotFound
	}
	return []byte(doc), nil
}

func (g fakeGateway) Manifest(context.Context, string, sefaz.ManifestEvent, string) error {
	return nil
}

func newService(b *memBackend) *Service {
	return New(Deps{
		Documents: b,
		Suppliers: b,
		Notes:     b,
		Links:     b,
		Catalog:   b,
		OFXItems:  b,
		OpenItems: b,
		Ledger:    b,
		Gateway:   fakeGateway{docs: map[string]string{accessKey: nfeXML}},
	}, Options{CompanyID: companyID})
}

func TestPreviewXMLWarnsWithoutPersisting(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)

	p, err := svc.PreviewXML(context.Background(), []byte(nfeXML))
	require.NoError(t, err)

	assert.True(t, p.Report.IsValid())
	assert.True(t, p.Report.HasCode(validation.CodeTotalMismatch))
	assert.False(t, p.Report.HasCode(validation.CodeTotalCorrected))
	assert.InDelta(t, 1100.0, p.Invoice.Totals.GrandTotal, 0.001)

	require.NotNil(t, p.Note)
	require.Len(t, p.Note.Items, 1)
	assert.Equal(t, productlink.StatusPending, p.Note.Items[0].LinkStatus)
	assert.Empty(t, b.notes)
}

func TestImportXMLCorrectsAndPersists(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)

	res, err := svc.ImportXML(context.Background(), []byte(nfeXML), SourceCLI)
	require.NoError(t, err)

	assert.True(t, res.Report.HasCode(validation.CodeTotalCorrected))
	assert.True(t, res.Note.Persisted)
	assert.Equal(t, entrynote.StatusDraft, res.Note.Status)
	assert.Equal(t, accessKey, res.Note.Header.AccessKey)
	assert.Equal(t, entrynote.ProvenanceFiscalImported, res.Note.Provenance(entrynote.FieldNumber))
	assert.NotEmpty(t, res.Note.RawXML)
	require.Len(t, res.Note.Installments, 1)
	assert.InDelta(t, 1000.0, res.Note.Installments[0].Value, 0.001)

	assert.Len(t, b.notes, 1)
	require.Len(t, b.suppliers, 1)
	assert.Equal(t, "12345678000195", b.suppliers[0].TaxID)
}

func TestCreateNoteFromXMLKeepsDeclaredTotal(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)

	res, err := svc.CreateNoteFromXML(context.Background(), []byte(nfeXML))
	require.NoError(t, err)

	assert.True(t, res.Report.IsValid())
	assert.True(t, res.Report.HasCode(validation.CodeTotalMismatch))
	assert.False(t, res.Report.HasCode(validation.CodeTotalCorrected))
	assert.True(t, res.Note.Persisted)
	assert.Equal(t, entrynote.StatusDraft, res.Note.Status)
	require.Len(t, res.Note.Installments, 1)
	assert.InDelta(t, 1100.0, res.Note.Installments[0].Value, 0.001)
	assert.Contains(t, b.notes, res.Note.ID)

	// segunda gravação do mesmo XML bloqueia como duplicada
	_, err = svc.CreateNoteFromXML(context.Background(), []byte(nfeXML))
	assert.ErrorIs(t, err, ErrDuplicateDocument)
	assert.Len(t, b.notes, 1)
}

func TestCreateManualNote(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	empty, err := svc.CreateNote(ctx, ManualNote{})
	require.NoError(t, err)
	assert.Equal(t, entrynote.StatusDraft, empty.Status)
	assert.False(t, empty.FromFiscal())

	_, err = svc.PostNote(ctx, empty.ID, entrynote.PostOptions{})
	assert.ErrorIs(t, err, entrynote.ErrMissingHeader)

	freight := 4.5
	n, err := svc.CreateNote(ctx, ManualNote{
		Header: HeaderUpdate{
			Fields: map[entrynote.HeaderField]string{
				entrynote.FieldNumber:    "77",
				entrynote.FieldSupplier:  "forn-9",
				entrynote.FieldIssueDate: "10/03/2024",
			},
			Freight: &freight,
		},
		Items: []entrynote.ManualItem{{ProductID: "p-1", Description: "PALHETA", Unit: "UN", Quantity: 2, UnitPrice: 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, entrynote.StatusTyping, n.Status)
	assert.Equal(t, entrynote.ProvenanceUserEntered, n.Provenance(entrynote.FieldNumber))
	assert.InDelta(t, 44.5, n.Totals.GrandTotal, 0.001)

	// campo digitado continua editável
	n, err = svc.UpdateHeader(ctx, n.ID, HeaderUpdate{Fields: map[entrynote.HeaderField]string{entrynote.FieldNumber: "78"}})
	require.NoError(t, err)
	assert.Equal(t, "78", n.Header.Number)

	out, err := svc.PostNote(ctx, n.ID, entrynote.PostOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Moves)
	assert.Equal(t, entrynote.StatusPosted, b.notes[n.ID].Status)

	_, err = svc.CreateNote(ctx, ManualNote{Items: []entrynote.ManualItem{{ProductID: "p-1", Quantity: 0}}})
	assert.ErrorIs(t, err, entrynote.ErrInvalidQuantity)
}

func TestImportXMLDuplicate(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	_, err := svc.ImportXML(ctx, []byte(nfeXML), SourceXML)
	require.NoError(t, err)

	res, err := svc.ImportXML(ctx, []byte(nfeXML), SourceXML)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, ErrDuplicateDocument)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Report.HasCode(validation.CodeDuplicateDocument))
	assert.Same(t, verr.Report, res.Report)
	assert.Len(t, b.notes, 1)
	assert.Len(t, b.suppliers, 1)
}

func TestImportXMLMalformed(t *testing.T) {
	svc := newService(newMemBackend())
	_, err := svc.ImportXML(context.Background(), []byte("<nfeProc><NFe>"), SourceXML)
	assert.ErrorIs(t, err, fiscal.ErrMalformedXML)
	assert.NotErrorIs(t, err, ErrValidationFailed)
}

func TestFetchAndImport(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)

	res, err := svc.FetchAndImport(context.Background(), accessKey)
	require.NoError(t, err)
	assert.Equal(t, "1234", res.Note.Header.Number)

	_, err = svc.FetchAndImport(context.Background(), strings.Repeat("1", 44))
	assert.ErrorIs(t, err, sefaz.ErrDocumentNotFound)
}

func TestNoteWorkflow(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	res, err := svc.ImportXML(ctx, []byte(nfeXML), SourceAPI)
	require.NoError(t, err)
	id := res.Note.ID

	// caixa com 2 vira 24 unidades no estoque
	qty := 24.0
	n, err := svc.UpdateItem(ctx, id, 1, ItemUpdate{InternalQuantity: &qty})
	require.NoError(t, err)
	it, err := n.Item(1)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, it.ConversionFactor, 1e-9)
	assert.Equal(t, entrynote.StatusTyping, n.Status)

	_, err = svc.PostNote(ctx, id, entrynote.PostOptions{})
	assert.ErrorIs(t, err, productlink.ErrPendingLinks)

	n, err = svc.LinkItem(ctx, id, 1, "prod-42", false)
	require.NoError(t, err)
	it, _ = n.Item(1)
	assert.Equal(t, productlink.StatusLinked, it.LinkStatus)
	assert.Len(t, b.links, 1)

	_, err = svc.LinkItem(ctx, id, 1, "prod-43", false)
	assert.ErrorIs(t, err, productlink.ErrAlreadyResolved)

	out, err := svc.PostNote(ctx, id, entrynote.PostOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Moves)
	require.Len(t, b.moves, 1)
	assert.Equal(t, "prod-42", b.moves[0].ProductID)
	assert.InDelta(t, 24.0, b.moves[0].Quantity, 1e-9)
	assert.Len(t, b.payables, 1)

	assert.ErrorIs(t, svc.CancelNote(ctx, id), entrynote.ErrNoteClosed)
	_, err = svc.UpdateItem(ctx, id, 1, ItemUpdate{InternalQuantity: &qty})
	assert.ErrorIs(t, err, entrynote.ErrNoteClosed)
}

func TestManualEdits(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	res, err := svc.ImportXML(ctx, []byte(nfeXML), SourceAPI)
	require.NoError(t, err)
	id := res.Note.ID

	_, err = svc.UpdateHeader(ctx, id, HeaderUpdate{Fields: map[entrynote.HeaderField]string{entrynote.FieldNumber: "99"}})
	assert.ErrorIs(t, err, entrynote.ErrFieldLocked)

	freight := 10.0
	n, err := svc.UpdateHeader(ctx, id, HeaderUpdate{
		Fields:  map[entrynote.HeaderField]string{entrynote.FieldEntryDate: "2024-03-12"},
		Freight: &freight,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-12", n.Header.EntryDate)
	assert.InDelta(t, 1010.0, n.Totals.GrandTotal, 0.001)

	ncm := "12345678"
	_, err = svc.UpdateItem(ctx, id, 1, ItemUpdate{NCM: &ncm})
	assert.ErrorIs(t, err, entrynote.ErrFieldLocked)

	n, err = svc.AddItem(ctx, id, entrynote.ManualItem{ProductID: "p-7", Description: "BORRACHA", Unit: "UN", Quantity: 3, UnitPrice: 5})
	require.NoError(t, err)
	require.Len(t, n.Items, 2)
	assert.InDelta(t, 1025.0, n.Totals.GrandTotal, 0.001)

	discount := 5.0
	n, err = svc.UpdateItem(ctx, id, 2, ItemUpdate{Discount: &discount})
	require.NoError(t, err)
	assert.InDelta(t, 1020.0, n.Totals.GrandTotal, 0.001)

	_, err = svc.RemoveItem(ctx, id, 1)
	assert.ErrorIs(t, err, entrynote.ErrFieldLocked)

	n, err = svc.RemoveItem(ctx, id, 2)
	require.NoError(t, err)
	assert.Len(t, n.Items, 1)
	assert.InDelta(t, 1010.0, n.Totals.GrandTotal, 0.001)
}

func TestNextImportReusesStoredLink(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	res, err := svc.ImportXML(ctx, []byte(nfeXML), SourceAPI)
	require.NoError(t, err)
	_, err = svc.IgnoreItem(ctx, res.Note.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.CancelNote(ctx, res.Note.ID))

	// nota cancelada não conta como duplicada
	p, err := svc.PreviewXML(ctx, []byte(nfeXML))
	require.NoError(t, err)
	require.NotNil(t, p.Note)
	assert.Equal(t, productlink.StatusIgnored, p.Note.Items[0].LinkStatus)
	assert.Zero(t, p.Note.PendingLinks())
}

func TestPostNotePayablesFailure(t *testing.T) {
	b := newMemBackend()
	svc := newService(b)
	ctx := context.Background()

	res, err := svc.ImportXML(ctx, []byte(nfeXML), SourceAPI)
	require.NoError(t, err)
	_, err = svc.LinkItem(ctx, res.Note.ID, 1, "prod-42", true)
	require.NoError(t, err)

	b.failPayables = errors.New("conexão perdida")
	out, err := svc.PostNote(ctx, res.Note.ID, entrynote.PostOptions{})
	assert.ErrorIs(t, err, entrynote.ErrPayablesFailed)
	require.NotNil(t, out)
	assert.True(t, out.PayablesFailed)
	assert.Equal(t, entrynote.StatusPosted, b.notes[res.Note.ID].Status)
}

func TestImportOFXAndReconcile(t *testing.T) {
	b := newMemBackend()
	b.open = []ofx.OpenItem{{
		ID:          "cp-1",
		Kind:        ofx.KindPayable,
		Description: "NF 1234/1 parcela 001",
		DueDate:     "2024-03-15",
		FinalValue:  decimal.RequireFromString("1100.00"),
	}}
	svc := newService(b)
	ctx := context.Background()

	rep, err := svc.ImportOFX(ctx, "", []byte(statement))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.New)
	assert.Equal(t, 1, rep.Suggested)
	assert.Equal(t, "12345-6", rep.Statement.AccountID)
	require.NotNil(t, rep.Txs[0].Match)
	assert.Equal(t, "cp-1", rep.Txs[0].Match.ID)
	assert.Equal(t, ofx.CategoryBankFee, rep.Txs[1].Category)
	assert.Len(t, b.items, 2)

	mv, err := svc.Reconcile(ctx, ofx.ReconcileRequest{
		AccountID:  "12345-6",
		FITID:      "F001",
		OpenItemID: "cp-1",
		Kind:       ofx.KindPayable,
	})
	require.NoError(t, err)
	assert.Equal(t, companyID, mv.CompanyID)
	assert.Equal(t, "cp-1", mv.PayableID)
	assert.True(t, mv.Amount.Equal(decimal.RequireFromString("1100")))
	assert.Equal(t, []string{"cp-1"}, b.settled)
	assert.Equal(t, mv.ID, b.items["F001"].MovementID)

	rep, err = svc.ImportOFX(ctx, "12345-6", []byte(statement))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.New)
	assert.Equal(t, 2, rep.Reconciled)

	_, err = svc.ImportOFX(ctx, "12345-6", []byte("não é extrato"))
	assert.ErrorIs(t, err, ofx.ErrNotOFX)
}
