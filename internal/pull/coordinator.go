package pull

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/chrono"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/db"
	"pys-backend/internal/taxonomy"

	"github.com/google/uuid"
)

const (
	report_coordinator_pull    = "coordinator.pull"
	report_coordinator_marker  = "coordinator.marker"
	report_coordinator_history = "coordinator.history"
	report_coordinator_listen  = "coordinator.listener"
	report_coordinator_classes = "coordinator.classes"
)

const DefaultStaleness = time.Hour * 24 * 7

type LockReason string

const (
	ReasonInProgress LockReason = "pull in progress"
	ReasonNoArtifact LockReason = "no artifact"
	ReasonFresh      LockReason = "artifact is fresh"
	ReasonStale      LockReason = "artifact is stale"
)

type LockStatus struct {
	Locked bool       `json:"locked"`
	Reason LockReason `json:"reason"`
}

// ErrLocked is the error of a pull that was not started because of the lock.
var ErrLocked = errors.New("pull: locked")

type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Result struct {
	ID         uuid.UUID      `json:"id"`
	Started    bool           `json:"started"`
	Forced     bool           `json:"forced"`
	Status     Status         `json:"status"`
	Reason     LockReason     `json:"reason,omitempty"`
	Stats      taxonomy.Stats `json:"stats"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Artifact   string         `json:"artifact,omitempty"`
	XmlPath    string         `json:"xml_artifact,omitempty"`
	Err        error          `json:"-"`
	Error      string         `json:"error,omitempty"`
}

// Listener is notified after every pull that ran, successful or not.
// Listener errors are reported and never fail the pull.
type Listener interface {
	PullFinished(ctx context.Context, result Result) error
}

// Task is a handle to a pull, it is finished as soon as it is returned when
// the pull was not started.
type Task struct {
	id      uuid.UUID
	started bool
	done    chan struct{}
	result  Result
}

func (t *Task) ID() uuid.UUID {
	return t.id
}

// Started reports whether the pipeline was started, it is known immediately.
func (t *Task) Started() bool {
	return t.started
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the pull finished or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the result of a finished task.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

type Options struct {
	// ArtifactPath is where the JSON tree is persisted, the marker lives
	// next to it with a ".lock" suffix.
	ArtifactPath string
	// XmlPath optionally persists the XML rendering as well.
	XmlPath string
	// Staleness is how long an artifact stays fresh, defaults to a week.
	Staleness time.Duration
	// MarkerTimeout makes markers older than it count as abandoned, 0 never
	// expires a marker.
	MarkerTimeout time.Duration

	NewCascade func(ctx context.Context) (Cascade, error)
	DB         *db.Queries
	MakeTx     db.MakeTx
	Listeners  []Listener
	Time       chrono.TimeAPI
	Tel        telemetry.API
}

type Coordinator struct {
	artifact      string
	xmlPath       string
	marker        string
	staleness     time.Duration
	markerTimeout time.Duration

	newCascade func(ctx context.Context) (Cascade, error)
	db         *db.Queries
	makeTx     db.MakeTx
	listeners  []Listener
	time       chrono.TimeAPI
	tel        telemetry.API

	mu   sync.Mutex
	last *Result
}

func NewCoordinator(opts Options) *Coordinator {
	assert.NotEmptyStr(opts.ArtifactPath, "artifact path")
	assert.NotNil(opts.NewCascade, "cascade factory")
	assert.NotNil(opts.DB, "db")
	assert.NotNil(opts.MakeTx, "makeTx")

	c := &Coordinator{
		artifact:      opts.ArtifactPath,
		xmlPath:       opts.XmlPath,
		marker:        opts.ArtifactPath + ".lock",
		staleness:     opts.Staleness,
		markerTimeout: opts.MarkerTimeout,
		newCascade:    opts.NewCascade,
		db:            opts.DB,
		makeTx:        opts.MakeTx,
		listeners:     opts.Listeners,
		time:          opts.Time,
		tel:           opts.Tel,
	}
	if c.staleness == 0 {
		c.staleness = DefaultStaleness
	}
	if c.time == nil {
		c.time = chrono.NewStandardTime()
	}
	if c.tel == nil {
		c.tel = telemetry.SlogAPI{}
	}
	c.tel = telemetry.NewScopedAPI("pull", c.tel)
	return c
}

func (c *Coordinator) ArtifactPath() string {
	return c.artifact
}

func (c *Coordinator) XmlPath() string {
	return c.xmlPath
}

// markerExpired reports whether an existing marker is older than the timeout.
func (c *Coordinator) markerExpired(info fs.FileInfo) bool {
	return c.markerTimeout > 0 && c.time.Now().Sub(info.ModTime()) > c.markerTimeout
}

// IsLocked derives the lock state from the filesystem only, so it is the
// same across restarts.
func (c *Coordinator) IsLocked() LockStatus {
	info, err := os.Stat(c.marker)
	if err == nil && !c.markerExpired(info) {
		return LockStatus{Locked: true, Reason: ReasonInProgress}
	}

	info, err = os.Stat(c.artifact)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.tel.ReportWarning(report_coordinator_pull, err)
		}
		return LockStatus{Locked: false, Reason: ReasonNoArtifact}
	}

	if c.time.Now().Sub(info.ModTime()) < c.staleness {
		return LockStatus{Locked: true, Reason: ReasonFresh}
	}
	return LockStatus{Locked: false, Reason: ReasonStale}
}

func (c *Coordinator) finished(task *Task, result Result) *Task {
	task.result = result
	close(task.done)
	return task
}

// Pull starts a pull unless it is locked. forced bypasses the freshness
// check but never an in progress pull. The pipeline runs detached from
// ctx cancellation, use the returned task to await it.
func (c *Coordinator) Pull(ctx context.Context, forced bool) *Task {
	task := &Task{
		id:   uuid.New(),
		done: make(chan struct{}),
	}
	skipped := func(reason LockReason, err error) *Task {
		now := c.time.Now()
		return c.finished(task, Result{
			ID:         task.id,
			Forced:     forced,
			Status:     StatusSkipped,
			Reason:     reason,
			StartedAt:  now,
			FinishedAt: now,
			Err:        err,
			Error:      err.Error(),
		})
	}

	status := c.IsLocked()
	if status.Reason == ReasonInProgress || (status.Locked && !forced) {
		return skipped(status.Reason, fmt.Errorf("%w: %s", ErrLocked, status.Reason))
	}

	if info, err := os.Stat(c.marker); err == nil && c.markerExpired(info) {
		c.tel.ReportWarning(report_coordinator_marker, "removing abandoned marker", c.marker, info.ModTime())
		os.Remove(c.marker)
	}

	err := c.createMarker(task.id)
	if errors.Is(err, fs.ErrExist) {
		return skipped(ReasonInProgress, fmt.Errorf("%w: %s", ErrLocked, ReasonInProgress))
	}
	if err != nil {
		c.tel.ReportBroken(report_coordinator_marker, err)
		now := c.time.Now()
		return c.finished(task, Result{
			ID:         task.id,
			Forced:     forced,
			Status:     StatusFailed,
			StartedAt:  now,
			FinishedAt: now,
			Err:        err,
			Error:      err.Error(),
		})
	}

	task.started = true
	go c.run(context.WithoutCancel(ctx), task, forced)
	return task
}

func (c *Coordinator) createMarker(id uuid.UUID) error {
	err := os.MkdirAll(filepath.Dir(c.marker), 0755)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(c.marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s %s\n", id, c.time.Now().Format(time.RFC3339))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(c.marker)
		return err
	}
	return nil
}

func (c *Coordinator) run(ctx context.Context, task *Task, forced bool) {
	defer close(task.done)

	result := c.holdMarker(ctx, task.id, forced)

	// published last so a visible result implies its listeners ran and the
	// marker is gone
	c.mu.Lock()
	c.last = &result
	c.mu.Unlock()
	task.result = result
}

// holdMarker runs the pipeline, history and listeners, the marker is held
// until the listeners ran since they may read the artifacts.
func (c *Coordinator) holdMarker(ctx context.Context, id uuid.UUID, forced bool) Result {
	stopHeartbeat := c.heartbeat(id)
	defer c.releaseMarker(id)
	defer stopHeartbeat()

	result := Result{
		ID:        id,
		Started:   true,
		Forced:    forced,
		StartedAt: c.time.Now(),
		Artifact:  c.artifact,
		XmlPath:   c.xmlPath,
	}

	stats, err := c.execute(ctx)
	result.FinishedAt = c.time.Now()
	result.Stats = stats
	if err != nil {
		c.tel.ReportBroken(report_coordinator_pull, err)
		result.Status = StatusFailed
		result.Err = err
		result.Error = err.Error()
	} else {
		result.Status = StatusSucceeded
		c.tel.ReportCount(report_coordinator_classes, int64(stats.Classes))
	}

	c.recordHistory(ctx, result)
	for _, l := range c.listeners {
		err := l.PullFinished(ctx, result)
		if err != nil {
			c.tel.ReportWarning(report_coordinator_listen, err)
		}
	}
	return result
}

// markerOwner returns the task id written into the marker.
func (c *Coordinator) markerOwner() (string, error) {
	data, err := os.ReadFile(c.marker)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// heartbeat keeps the marker of a running pull younger than the marker
// timeout so a long pull is never mistaken for an abandoned one.
func (c *Coordinator) heartbeat(id uuid.UUID) (stop func()) {
	if c.markerTimeout <= 0 {
		return func() {}
	}
	interval := c.markerTimeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				owner, err := c.markerOwner()
				if err != nil || owner != id.String() {
					c.tel.ReportWarning(report_coordinator_marker, "marker taken over", c.marker, owner)
					return
				}
				now := c.time.Now()
				err = os.Chtimes(c.marker, now, now)
				if err != nil {
					c.tel.ReportWarning(report_coordinator_marker, err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// releaseMarker removes the marker unless another pull owns it by now.
func (c *Coordinator) releaseMarker(id uuid.UUID) {
	owner, err := c.markerOwner()
	if err != nil {
		c.tel.ReportBroken(report_coordinator_marker, err)
		return
	}
	if owner != id.String() {
		c.tel.ReportWarning(report_coordinator_marker, "marker owned by another pull", c.marker, owner)
		return
	}
	err = os.Remove(c.marker)
	if err != nil {
		c.tel.ReportBroken(report_coordinator_marker, err)
	}
}

// execute runs the pipeline, the caller holds the marker.
func (c *Coordinator) execute(ctx context.Context) (taxonomy.Stats, error) {
	cascade, err := c.newCascade(ctx)
	if err != nil {
		return taxonomy.Stats{}, fmt.Errorf("create cascade: %w", err)
	}
	tree, err := Generate(ctx, cascade, c.tel)
	if err != nil {
		return taxonomy.Stats{}, fmt.Errorf("generate: %w", err)
	}

	err = taxonomy.WriteJSON(c.artifact, tree)
	if err != nil {
		return tree.Stats(), err
	}
	if c.xmlPath != "" {
		err = taxonomy.WriteXML(c.xmlPath, tree)
		if err != nil {
			return tree.Stats(), err
		}
	}

	// load what was persisted, not what was generated
	persisted, err := taxonomy.ReadJSON(c.artifact)
	if err != nil {
		return tree.Stats(), err
	}
	err = ReplaceClassifications(ctx, c.makeTx, taxonomy.Flatten(persisted))
	if err != nil {
		return persisted.Stats(), fmt.Errorf("load: %w", err)
	}
	return persisted.Stats(), nil
}

func (c *Coordinator) recordHistory(ctx context.Context, result Result) {
	err := c.db.InsertPullHistory(ctx, db.PullHistory{
		ID:           result.ID.String(),
		StartedAt:    result.StartedAt.Unix(),
		FinishedAt:   result.FinishedAt.Unix(),
		Status:       string(result.Status),
		ErrorMessage: result.Error,
		Types:        int64(result.Stats.Types),
		Segments:     int64(result.Stats.Segments),
		Families:     int64(result.Stats.Families),
		Classes:      int64(result.Stats.Classes),
	})
	if err != nil {
		c.tel.ReportBroken(report_coordinator_history, err)
	}
}

// LastResult returns the result of the latest pull that ran, falling back
// to the persisted history after a restart.
func (c *Coordinator) LastResult(ctx context.Context) (Result, bool) {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if last != nil {
		return *last, true
	}

	row, err := c.db.GetLatestPullHistory(ctx)
	if err != nil {
		return Result{}, false
	}
	id, err := uuid.Parse(row.ID)
	if err != nil {
		c.tel.ReportWarning(report_coordinator_history, err)
		return Result{}, false
	}
	return Result{
		ID:         id,
		Started:    true,
		Status:     Status(row.Status),
		StartedAt:  time.Unix(row.StartedAt, 0).In(chrono.MexicoCity()),
		FinishedAt: time.Unix(row.FinishedAt, 0).In(chrono.MexicoCity()),
		Error:      row.ErrorMessage,
		Artifact:   c.artifact,
		Stats: taxonomy.Stats{
			Types:    int(row.Types),
			Segments: int(row.Segments),
			Families: int(row.Families),
			Classes:  int(row.Classes),
		},
	}, true
}
