package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-esign/auth"
	"github.com/diewo77/go-esign/internal/db"
	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/diewo77/go-esign/internal/services"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "correct horse"

type fakeGateway struct {
	mu        sync.Mutex
	creates   int
	launchErr error
	status    esign.Status
}

func (g *fakeGateway) CreateTransaction(context.Context, []byte, string) (esign.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	id := fmt.Sprintf("tx-%d", g.creates)
	return esign.Transaction{UUID: id, DocumentID: "doc-" + id}, nil
}

func (g *fakeGateway) Launch(_ context.Context, req esign.LaunchRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.launchErr != nil {
		return "", g.launchErr
	}
	return "https://sign.example/" + req.TransactionUUID, nil
}

func (g *fakeGateway) CheckStatus(context.Context, string) (esign.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, nil
}

func (g *fakeGateway) FetchSignedDocument(context.Context, string) ([]byte, error) {
	return []byte("%PDF-signed"), nil
}

type stubRenderer struct{}

func (stubRenderer) Render(context.Context, *models.SaleOrder) ([]byte, error) {
	return []byte("%PDF-quotation"), nil
}

type testApp struct {
	t       *testing.T
	db      *gorm.DB
	gateway *fakeGateway
	server  *httptest.Server

	admin, sam, other models.User
	alice             models.Partner
	order             models.SaleOrder
	template          models.SignatureTemplate
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if err := db.Seed(ctx, gdb, db.SeedOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	a := &testApp{t: t, db: gdb, gateway: &fakeGateway{status: esign.StatusSent}}
	a.admin = a.user("admin@example.com", db.ProfileAdmin)
	a.sam = a.user("sam@example.com", db.ProfileSalesman)
	a.other = a.user("olivia@example.com", db.ProfileSalesman)

	templates := services.NewTemplateService(gdb)
	a.template = models.SignatureTemplate{Name: "Last page", Sequence: 10, Active: true, XAxis: 100, YAxis: 100,
		PageType: models.PageTypeLast, SignatureType: models.SignatureTypeSimple, IsDefault: true}
	if err := templates.Create(ctx, &a.template); err != nil {
		t.Fatalf("create template: %v", err)
	}
	a.alice = models.Partner{Name: "Alice Martin", Email: "alice@example.com", Phone: "+33600000001", Type: models.PartnerTypeContact, Active: true}
	mustCreate(t, gdb, &a.alice)
	a.order = models.SaleOrder{Name: "SO042", PartnerID: a.alice.ID, UserID: &a.sam.ID, Currency: "EUR",
		Signature: models.SignatureRequest{Status: models.SignatureStatusDraft}}
	mustCreate(t, gdb, &a.order)

	gate := policy.NewGate(gdb, time.Minute)
	gate.Register(policy.ResourceSaleOrder, policy.OrderPolicy{})
	sessions := auth.NewSessions("test-secret")
	settings := services.NewSettingsService(gdb, esign.Credentials{})
	signatures := services.NewSignatureService(gdb, a.gateway, stubRenderer{},
		services.WithPageCounter(func([]byte) (int, error) { return 2, nil }))
	router := NewRouter(RouterConfig{
		Gate:      gate,
		Sessions:  sessions,
		Auth:      NewAuthHandler(gdb, sessions),
		Templates: NewTemplateHandler(templates),
		Orders:    NewOrderHandler(signatures, services.NewSignerService(gdb, templates), services.NewChatter(gdb), gate),
		Settings:  NewSettingsHandler(settings),
		Admin:     NewAdminHandler(gdb, gate),
	})
	a.server = httptest.NewServer(router)
	t.Cleanup(a.server.Close)
	return a
}

func mustCreate(t *testing.T, gdb *gorm.DB, v any) {
	t.Helper()
	if err := gdb.Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func (a *testApp) user(email, profileName string) models.User {
	a.t.Helper()
	var profile models.Profile
	if err := a.db.Where("name = ?", profileName).First(&profile).Error; err != nil {
		a.t.Fatalf("load profile %s: %v", profileName, err)
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	u := models.User{Email: email, Name: strings.Split(email, "@")[0], Password: string(hash), Active: true, ProfileID: &profile.ID}
	mustCreate(a.t, a.db, &u)
	return u
}

// login returns the session cookies of a user.
func (a *testApp) login(u models.User) []*http.Cookie {
	a.t.Helper()
	res := a.do(nil, http.MethodPost, "/api/login", map[string]string{"email": u.Email, "password": testPassword})
	if res.StatusCode != http.StatusOK {
		a.t.Fatalf("login %s: expected 200 got %d", u.Email, res.StatusCode)
	}
	return res.Cookies()
}

func (a *testApp) do(cookies []*http.Cookie, method, path string, body any) *http.Response {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	if err != nil {
		a.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res, err := a.server.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	a.t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func orderPath(id uint, suffix string) string {
	return fmt.Sprintf("/api/orders/%d%s", id, suffix)
}
