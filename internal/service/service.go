package service

import (
	"context"
	"errors"
	"time"

	"pys-backend/internal/catalog"
	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/chrono"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/db"
	"pys-backend/internal/pull"
)

const (
	report_db_query       = "db.query"
	report_latest_read    = "latest.read"
	report_trigger_pull   = "trigger.pull"
	report_trigger_ingest = "trigger.catalog"
)

var (
	// ErrNoData means nothing was pulled or imported yet.
	ErrNoData = errors.New("no data available yet")
	// ErrNotFound means the requested key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery means the request arguments cannot be served.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnavailable means the feature was not configured.
	ErrUnavailable = errors.New("not available")
)

// PullAPI is the part of *pull.Coordinator the service depends on.
//
// note: fault injection point
type PullAPI interface {
	IsLocked() pull.LockStatus
	Pull(ctx context.Context, forced bool) *pull.Task
	LastResult(ctx context.Context) (pull.Result, bool)
	ArtifactPath() string
	XmlPath() string
}

// CatalogAPI is the part of *catalog.Ingester the service depends on.
type CatalogAPI interface {
	Ingest(ctx context.Context, forced bool) (catalog.Result, error)
}

type coreAPIs struct {
	db   *db.Queries
	time chrono.TimeAPI
	tel  telemetry.API
}

type serviceConfig struct {
	tel     telemetry.API
	time    chrono.TimeAPI
	catalog CatalogAPI
	cache   *SearchCache
	origins []string
}

type Option func(cfg *serviceConfig)

func WithCustomTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

func WithCustomTimeAPI(time chrono.TimeAPI) Option {
	return func(cfg *serviceConfig) {
		cfg.time = time
	}
}

// WithCatalog enables the catalog refresh trigger.
func WithCatalog(catalog CatalogAPI) Option {
	return func(cfg *serviceConfig) {
		cfg.catalog = catalog
	}
}

// WithSearchCache shares a cache that is also registered as a pull
// listener, so it is purged after every load.
func WithSearchCache(cache *SearchCache) Option {
	return func(cfg *serviceConfig) {
		cfg.cache = cache
	}
}

// WithAllowedOrigins restricts CORS, every origin is allowed by default.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *serviceConfig) {
		cfg.origins = origins
	}
}

// Service serves the pulled taxonomy and the product catalog.
type Service struct {
	coreAPIs

	pull    PullAPI
	catalog CatalogAPI
	cache   *SearchCache
	origins []string
}

func NewService(qry *db.Queries, pullAPI PullAPI, options ...Option) *Service {
	assert.NotNil(qry, "db")
	assert.NotNil(pullAPI, "pull")

	cfg := serviceConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	apis := coreAPIs{
		db:   qry,
		time: chrono.NewStandardTime(),
		tel:  telemetry.SlogAPI{},
	}
	if cfg.time != nil {
		apis.time = cfg.time
	}
	if cfg.tel != nil {
		apis.tel = cfg.tel
	}
	apis.tel = telemetry.NewScopedAPI("service", apis.tel)

	cache := cfg.cache
	if cache == nil {
		cache = NewSearchCache(DefaultCacheSize, DefaultCacheTTL)
	}

	return &Service{
		coreAPIs: apis,
		pull:     pullAPI,
		catalog:  cfg.catalog,
		cache:    cache,
		origins:  cfg.origins,
	}
}

type PullTrigger struct {
	Started bool            `json:"started"`
	ID      string          `json:"id"`
	Reason  pull.LockReason `json:"reason,omitempty"`
}

// TriggerPull starts a pull in the background, when the lock refuses it the
// reason is returned instead.
func (s *Service) TriggerPull(ctx context.Context, forced bool) PullTrigger {
	task := s.pull.Pull(ctx, forced)
	out := PullTrigger{
		Started: task.Started(),
		ID:      task.ID().String(),
	}
	if !task.Started() {
		result, _ := task.Result()
		out.Reason = result.Reason
		s.tel.ReportDebug("pull refused", string(result.Reason))
	}
	return out
}

type PullStatus struct {
	Lock pull.LockStatus `json:"lock"`
	Last *pull.Result    `json:"last,omitempty"`
	Now  time.Time       `json:"now"`
}

func (s *Service) PullStatus(ctx context.Context) PullStatus {
	status := PullStatus{
		Lock: s.pull.IsLocked(),
		Now:  s.time.Now(),
	}
	last, ok := s.pull.LastResult(ctx)
	if ok {
		status.Last = &last
	}
	return status
}

// TriggerCatalog imports the newest product catalog and waits for it.
func (s *Service) TriggerCatalog(ctx context.Context, forced bool) (catalog.Result, error) {
	if s.catalog == nil {
		return catalog.Result{}, ErrUnavailable
	}
	result, err := s.catalog.Ingest(ctx, forced)
	if err != nil {
		s.tel.ReportWarning(report_trigger_ingest, err)
		return catalog.Result{}, err
	}
	return result, nil
}
