package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/events"
	"github.com/diewo77/go-esign/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeGateway plays the signature API. Transactions are numbered tx-1, tx-2...
type fakeGateway struct {
	mu         sync.Mutex
	creates    int
	launches   int
	fetches    int
	createErr  error
	launchErr  error
	status     esign.Status
	statusErr  error
	doc        []byte
	lastLaunch esign.LaunchRequest
	onFetch    func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{status: esign.StatusSent, doc: []byte("%PDF-signed")}
}

func (g *fakeGateway) CreateTransaction(_ context.Context, pdf []byte, filename string) (esign.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return esign.Transaction{}, g.createErr
	}
	g.creates++
	id := fmt.Sprintf("tx-%d", g.creates)
	return esign.Transaction{UUID: id, DocumentID: "doc-" + id}, nil
}

func (g *fakeGateway) Launch(_ context.Context, req esign.LaunchRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.launches++
	g.lastLaunch = req
	if g.launchErr != nil {
		return "", g.launchErr
	}
	return "https://sign/" + req.TransactionUUID, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, uuid string) (esign.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.statusErr
}

func (g *fakeGateway) FetchSignedDocument(_ context.Context, uuid string) ([]byte, error) {
	g.mu.Lock()
	g.fetches++
	status, doc, hook := g.status, g.doc, g.onFetch
	g.onFetch = nil
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if status != esign.StatusSigned {
		return nil, esign.ErrNotReady
	}
	return doc, nil
}

type stubRenderer struct{ doc []byte }

func (r stubRenderer) Render(context.Context, *models.SaleOrder) ([]byte, error) {
	return r.doc, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	gateway   *fakeGateway
	events    *recordingPublisher
	templates *TemplateService
	signers   *SignerService
	svc       *SignatureService

	salesman models.User
	alice    models.Partner // individual customer
	acme     models.Partner // company customer
	bob      models.Partner // acme contact with email and phone
	carol    models.Partner // acme contact without email
	last     models.SignatureTemplate
	page1    models.SignatureTemplate
	order    models.SaleOrder
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()
	f := &fixture{db: db, gateway: newFakeGateway(), events: &recordingPublisher{}}
	f.templates = NewTemplateService(db)
	f.signers = NewSignerService(db, f.templates)
	f.svc = NewSignatureService(db, f.gateway, stubRenderer{doc: []byte("%PDF-quotation")},
		WithPageCounter(func([]byte) (int, error) { return 3, nil }),
		WithEvents(f.events),
		WithClock(func() time.Time { return fixedNow }),
	)

	f.salesman = models.User{Email: "sales@example.com", Name: "Sam Sales", Password: "hash", Active: true}
	mustCreate(t, db, &f.salesman)
	f.alice = models.Partner{Name: "Alice Martin", Email: "a@b.com", Phone: "+33600000001", Type: models.PartnerTypeContact, Active: true}
	mustCreate(t, db, &f.alice)
	f.acme = models.Partner{Name: "Acme", IsCompany: true, Type: "company", Active: true}
	mustCreate(t, db, &f.acme)
	f.bob = models.Partner{Name: "Bob Stone", Email: "bob@acme.test", Phone: "+33600000002", Type: models.PartnerTypeContact, Active: true, ParentID: &f.acme.ID}
	mustCreate(t, db, &f.bob)
	f.carol = models.Partner{Name: "Carol", Type: models.PartnerTypeContact, Active: true, ParentID: &f.acme.ID}
	mustCreate(t, db, &f.carol)

	f.last = models.SignatureTemplate{Name: "Last page", Sequence: 10, Active: true, XAxis: 120, YAxis: 80,
		PageType: models.PageTypeLast, SignatureType: models.SignatureTypeSimple, IsDefault: true}
	if err := f.templates.Create(ctx, &f.last); err != nil {
		t.Fatalf("create template: %v", err)
	}
	f.page1 = models.SignatureTemplate{Name: "First page", Sequence: 20, Active: true, XAxis: 10, YAxis: 20,
		PageType: models.PageTypeSpecific, PageNumber: 1, SignatureType: models.SignatureTypeQualified}
	if err := f.templates.Create(ctx, &f.page1); err != nil {
		t.Fatalf("create template: %v", err)
	}

	f.order = models.SaleOrder{Name: "SO001", PartnerID: f.alice.ID, UserID: &f.salesman.ID, Currency: "EUR",
		Lines:     []models.SaleOrderLine{{Description: "Consulting", Quantity: 2, UnitPrice: 500}},
		Signature: models.SignatureRequest{Status: models.SignatureStatusDraft}}
	mustCreate(t, db, &f.order)
	return f
}

func mustCreate(t *testing.T, db *gorm.DB, v any) {
	t.Helper()
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (f *fixture) signer(p *models.Partner, tmpl *models.SignatureTemplate) *ConfirmedSigner {
	return &ConfirmedSigner{Signer: p, Email: p.Email, Phone: p.Phone, Template: tmpl}
}

func (f *fixture) reload(t *testing.T) *models.SaleOrder {
	t.Helper()
	o, err := f.svc.Order(context.Background(), f.order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	checkInvariants(t, o)
	return o
}

func checkInvariants(t *testing.T, o *models.SaleOrder) {
	t.Helper()
	sig := o.Signature
	if sig.HasTransaction() != (sig.Status != models.SignatureStatusDraft) {
		t.Fatalf("uuid %q with status %s", sig.UUID(), sig.Status)
	}
	if (sig.SignedDocumentID != nil) != (sig.Status == models.SignatureStatusSigned) {
		t.Fatalf("signed document %v with status %s", sig.SignedDocumentID, sig.Status)
	}
}
