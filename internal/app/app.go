// Package app builds the pull coordinator, catalog ingester and query
// service out of a config, both binaries start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pys-backend/internal/catalog"
	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/chrono"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/config"
	"pys-backend/internal/db"
	"pys-backend/internal/notify"
	"pys-backend/internal/pull"
	"pys-backend/internal/scrapers/pys"
	"pys-backend/internal/scrapers/satcatalog"
	"pys-backend/internal/service"
)

const report_app_scheduled_ingest = "app.scheduled-ingest"

type App struct {
	DB          *sql.DB
	Queries     *db.Queries
	Coordinator *pull.Coordinator
	// Ingester is nil when the catalog is disabled.
	Ingester *catalog.Ingester
	Service  *service.Service

	cfg     config.Config
	tel     telemetry.API
	closers []func() error
}

type options struct {
	time       chrono.TimeAPI
	publishers []pull.Listener
}

type Option func(o *options)

func WithCustomTimeAPI(time chrono.TimeAPI) Option {
	return func(o *options) {
		o.time = time
	}
}

// WithPublisher adds a pull listener next to the configured ones.
func WithPublisher(listener pull.Listener) Option {
	return func(o *options) {
		o.publishers = append(o.publishers, listener)
	}
}

// New opens and migrates the database and wires every component. Close
// releases what New opened.
func New(ctx context.Context, cfg config.Config, tel telemetry.API, opts ...Option) (*App, error) {
	assert.NotNil(tel, "telemetry")

	o := options{time: chrono.NewStandardTime()}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{cfg: cfg, tel: tel}

	database, err := cfg.Database.OpenAndMigrate(ctx)
	if err != nil {
		return nil, err
	}
	app.DB = database
	app.closers = append(app.closers, database.Close)
	app.Queries = db.New(database)
	makeTx := db.NewMakeTx(database)

	publishers := notify.Multi(o.publishers)
	if cfg.Minio != nil {
		client, err := notify.NewMinioClient(*cfg.Minio)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		publishers = append(publishers, notify.NewMinioPublisher(client, cfg.Minio.Bucket, cfg.Minio.Prefix, tel))
	}
	if cfg.Amqp != nil {
		amqpPublisher, err := notify.DialAmqp(*cfg.Amqp)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("amqp: %w", err)
		}
		app.closers = append(app.closers, amqpPublisher.Close)
		publishers = append(publishers, amqpPublisher)
	}

	cache := service.NewSearchCache(cfg.Search.CacheSize, cfg.CacheTTL())
	listeners := []pull.Listener{cache}
	if len(publishers) > 0 {
		listeners = append(listeners, publishers)
	}

	sessionOpts := pys.SessionOptions{
		FormUrl:           cfg.Scraper.FormUrl,
		Timeout:           cfg.ScraperTimeout(),
		UserAgent:         cfg.Scraper.UserAgent,
		CloudflareBypass:  cfg.Scraper.CloudflareBypass,
		RequestsPerSecond: cfg.Scraper.RequestsPerSecond,
	}
	app.Coordinator = pull.NewCoordinator(pull.Options{
		ArtifactPath:  cfg.Pull.ArtifactPath,
		XmlPath:       cfg.Pull.XmlPath,
		Staleness:     cfg.Staleness(),
		MarkerTimeout: cfg.MarkerTimeout(),
		NewCascade: func(ctx context.Context) (pull.Cascade, error) {
			session, err := pys.NewSession(sessionOpts, tel)
			if err != nil {
				return nil, err
			}
			return pys.NewWalker(session), nil
		},
		DB:        app.Queries,
		MakeTx:    makeTx,
		Listeners: listeners,
		Time:      o.time,
		Tel:       tel,
	})

	serviceOpts := []service.Option{
		service.WithSearchCache(cache),
		service.WithCustomTimeAPI(o.time),
		service.WithCustomTelemetryAPI(tel),
		service.WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	if cfg.Catalog.Enabled {
		client := satcatalog.NewClient(satcatalog.ClientOptions{
			UrlTemplate:  cfg.Catalog.UrlTemplate,
			CacheDir:     cfg.Catalog.CacheDir,
			LookbackDays: cfg.Catalog.LookbackDays,
		}, tel)
		app.Ingester = catalog.NewIngester(client, app.Queries, makeTx, o.time, tel)
		serviceOpts = append(serviceOpts, service.WithCatalog(app.Ingester))
	}

	app.Service = service.NewService(app.Queries, app.Coordinator, serviceOpts...)
	return app, nil
}

// Schedule registers the configured cron jobs. Scheduled pulls are never
// forced, so they only run once the artifact is stale.
func (a *App) Schedule(ctx context.Context, cron chrono.CronAPI) error {
	if a.cfg.Pull.Schedule != "" {
		err := cron.Cron(a.cfg.Pull.Schedule, func() {
			task := a.Coordinator.Pull(ctx, false)
			if !task.Started() {
				result, _ := task.Result()
				a.tel.ReportDebug("scheduled pull skipped", string(result.Reason))
			}
		})
		if err != nil {
			return fmt.Errorf("pull schedule: %w", err)
		}
	} else {
		a.tel.ReportDebug("no pull schedule configured")
	}

	if a.Ingester != nil && a.cfg.Catalog.Schedule != "" {
		err := cron.Cron(a.cfg.Catalog.Schedule, func() {
			_, err := a.Ingester.Ingest(ctx, false)
			if err != nil && !errors.Is(err, catalog.ErrBusy) {
				a.tel.ReportWarning(report_app_scheduled_ingest, err)
			}
		})
		if err != nil {
			return fmt.Errorf("catalog schedule: %w", err)
		}
	}
	return nil
}

// Start runs the configured on-start jobs in the background.
func (a *App) Start(ctx context.Context) {
	if a.cfg.Pull.OnStart {
		task := a.Coordinator.Pull(ctx, false)
		if !task.Started() {
			result, _ := task.Result()
			a.tel.ReportDebug("pull on start skipped", string(result.Reason))
		}
	}
	if a.Ingester != nil && a.cfg.Catalog.OnStart {
		go func() {
			_, err := a.Ingester.Ingest(ctx, false)
			if err != nil {
				a.tel.ReportWarning(report_app_scheduled_ingest, err)
			}
		}()
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
