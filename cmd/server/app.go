package main

import (
	"context"
	"net/http"
	"time"

	"github.com/diewo77/go-esign/auth"
	"github.com/diewo77/go-esign/internal/config"
	"github.com/diewo77/go-esign/internal/db"
	"github.com/diewo77/go-esign/internal/esign"
	"github.com/diewo77/go-esign/internal/events"
	"github.com/diewo77/go-esign/internal/handlers"
	"github.com/diewo77/go-esign/internal/lock"
	"github.com/diewo77/go-esign/internal/logging"
	"github.com/diewo77/go-esign/internal/models"
	"github.com/diewo77/go-esign/internal/pdf"
	"github.com/diewo77/go-esign/internal/policy"
	"github.com/diewo77/go-esign/internal/services"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// App wires services and the HTTP router around one database.
type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Signatures *services.SignatureService
	Poller     *services.Poller
	Handler    http.Handler

	closers []func() error
	log     logging.Logger
}

// NewApp builds the application. Redis and Kafka are only contacted when configured.
func NewApp(ctx context.Context, cfg *config.Config, gdb *gorm.DB) (*App, error) {
	a := &App{cfg: cfg, db: gdb, log: logging.GetLogger("app")}

	settings := services.NewSettingsService(gdb, esign.Credentials{BaseURL: cfg.ESign.BaseURL, Token: cfg.ESign.Token})
	gateway := esign.NewClient(settings, esign.WithTimeouts(esign.Timeouts{
		Create: cfg.ESign.CreateTimeout,
		Launch: cfg.ESign.LaunchTimeout,
		Status: cfg.ESign.StatusTimeout,
		Fetch:  cfg.ESign.FetchTimeout,
	}))

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, errors.Wrap(err, "kafka publisher")
		}
		a.closers = append(a.closers, kp.Close)
		publisher = kp
		a.log.Info("publishing lifecycle events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.URL != "" {
		client, err := lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "redis")
		}
		a.closers = append(a.closers, client.Close)
		locker = lock.NewRedisLocker(client)
	}

	templates := services.NewTemplateService(gdb)
	a.Signatures = services.NewSignatureService(gdb, gateway, pdf.NewRenderer(), services.WithEvents(publisher))
	a.Poller = services.NewPoller(gdb, a.Signatures, locker, cfg.App.PollBatch, cfg.Redis.LockTTL)

	gate := policy.NewGate(gdb, 5*time.Minute)
	gate.Register(policy.ResourceSaleOrder, policy.OrderPolicy{})
	sessions := auth.NewSessions(cfg.Session.Secret,
		auth.WithSecureCookie(!cfg.App.Dev),
		auth.WithUserVerifier(func(ctx context.Context, uid uint) bool {
			var count int64
			gdb.WithContext(ctx).Model(&models.User{}).Where("id = ? AND active = ?", uid, true).Count(&count)
			return count > 0
		}),
	)

	a.Handler = handlers.NewRouter(handlers.RouterConfig{
		Gate:      gate,
		Sessions:  sessions,
		Auth:      handlers.NewAuthHandler(gdb, sessions),
		Templates: handlers.NewTemplateHandler(templates),
		Orders:    handlers.NewOrderHandler(a.Signatures, services.NewSignerService(gdb, templates), services.NewChatter(gdb), gate),
		Settings:  handlers.NewSettingsHandler(settings),
		Admin:     handlers.NewAdminHandler(gdb, gate),
		Ready:     func(ctx context.Context) error { return db.Ping(ctx, gdb) },
	})
	return a, nil
}

// RunPoller polls until ctx is done. A zero interval disables polling.
func (a *App) RunPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.Poller.RunOnce(ctx)
			if err != nil {
				a.log.Error("poll failed", "error", err)
				continue
			}
			if res.Checked > 0 {
				a.log.Info("poll done", "checked", res.Checked, "changed", res.Changed, "skipped", res.Skipped, "failed", res.Failed)
			}
		}
	}
}

// Close releases the broker and cache connections.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
