package pull

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/db"
	"pys-backend/internal/scrapers/pys"
	"pys-backend/internal/scrapers/pys/pysmock"
	"pys-backend/internal/taxonomy"
	"pys-backend/test"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu      sync.Mutex
	results []Result
	err     error
}

func (l *recordingListener) PullFinished(ctx context.Context, result Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	return l.err
}

type harness struct {
	coordinator *Coordinator
	qry         *db.Queries
	srv         *pysmock.Server
	artifact    string
	listener    *recordingListener
	tel         *telemetry.Recorder
}

func newHarness(t *testing.T, configure ...func(opts *Options)) harness {
	t.Helper()

	srv := pysmock.NewServer(pysmock.Sample())
	t.Cleanup(srv.Close)

	_, qry, makeTx := test.OpenQueries(t)
	dir := t.TempDir()
	rec := &telemetry.Recorder{}
	listener := &recordingListener{}

	opts := Options{
		ArtifactPath: filepath.Join(dir, "output.json"),
		XmlPath:      filepath.Join(dir, "output.xml"),
		NewCascade: func(ctx context.Context) (Cascade, error) {
			session, err := pys.NewSession(pys.SessionOptions{FormUrl: srv.FormUrl()}, rec)
			if err != nil {
				return nil, err
			}
			return pys.NewWalker(session), nil
		},
		DB:        qry,
		MakeTx:    makeTx,
		Listeners: []Listener{listener},
		Tel:       rec,
	}
	for _, c := range configure {
		c(&opts)
	}

	return harness{
		coordinator: NewCoordinator(opts),
		qry:         qry,
		srv:         srv,
		artifact:    opts.ArtifactPath,
		listener:    listener,
		tel:         rec,
	}
}

func wait(t *testing.T, task *Task) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()
	result, err := task.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestIsLocked(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, LockStatus{Locked: false, Reason: ReasonNoArtifact}, h.coordinator.IsLocked())

	require.NoError(t, taxonomy.WriteJSON(h.artifact, taxonomy.Tree{}))
	require.Equal(t, LockStatus{Locked: true, Reason: ReasonFresh}, h.coordinator.IsLocked())

	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(h.artifact, old, old))
	require.Equal(t, LockStatus{Locked: false, Reason: ReasonStale}, h.coordinator.IsLocked())

	require.NoError(t, os.WriteFile(h.artifact+".lock", nil, 0644))
	require.Equal(t, LockStatus{Locked: true, Reason: ReasonInProgress}, h.coordinator.IsLocked())
}

func TestPullEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task := h.coordinator.Pull(ctx, false)
	require.True(t, task.Started())
	result := wait(t, task)

	require.Equal(t, StatusSucceeded, result.Status)
	require.NoError(t, result.Err)
	require.Equal(t, taxonomy.Stats{Types: 2, Segments: 3, Families: 5, Classes: 5}, result.Stats)
	require.Equal(t, task.ID(), result.ID)

	tree, err := taxonomy.ReadJSON(h.artifact)
	require.NoError(t, err)
	rows, err := h.qry.ListClassifications(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(taxonomy.Flatten(tree), RowsFromDB(rows)); diff != "" {
		t.Fatalf("table does not match artifact (-want +got):\n%s", diff)
	}

	xml, err := os.ReadFile(filepath.Join(filepath.Dir(h.artifact), "output.xml"))
	require.NoError(t, err)
	require.Contains(t, string(xml), `<class key="701015" name="Operaciones pesqueras"></class>`)

	_, err = os.Stat(h.artifact + ".lock")
	require.True(t, errors.Is(err, os.ErrNotExist))

	history, err := h.qry.GetLatestPullHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, task.ID().String(), history.ID)
	require.Equal(t, string(StatusSucceeded), history.Status)
	require.Equal(t, int64(5), history.Classes)

	last, ok := h.coordinator.LastResult(ctx)
	require.True(t, ok)
	require.Equal(t, result.ID, last.ID)

	require.Len(t, h.listener.results, 1)

	// a fresh artifact skips the next unforced pull without touching the form
	requestCount := len(h.srv.Requests())
	skipped := wait(t, h.coordinator.Pull(ctx, false))
	require.False(t, skipped.Started)
	require.Equal(t, StatusSkipped, skipped.Status)
	require.Equal(t, ReasonFresh, skipped.Reason)
	require.ErrorIs(t, skipped.Err, ErrLocked)
	require.Len(t, h.srv.Requests(), requestCount)
	require.Len(t, h.listener.results, 1)
}

func TestForcedPullBypassesFreshness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, StatusSucceeded, wait(t, h.coordinator.Pull(ctx, false)).Status)
	require.True(t, h.coordinator.IsLocked().Locked)

	forced := h.coordinator.Pull(ctx, true)
	require.True(t, forced.Started())
	result := wait(t, forced)
	require.Equal(t, StatusSucceeded, result.Status)
	require.True(t, result.Forced)
}

func TestConcurrentPullsAreExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := h.srv.Hold()
	defer release()

	first := h.coordinator.Pull(ctx, true)
	require.True(t, first.Started())
	require.Equal(t, LockStatus{Locked: true, Reason: ReasonInProgress}, h.coordinator.IsLocked())

	var wg sync.WaitGroup
	tasks := make([]*Task, 8)
	for i := range tasks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tasks[i] = h.coordinator.Pull(ctx, true)
		}(i)
	}
	wg.Wait()

	for _, task := range tasks {
		require.False(t, task.Started())
		result := wait(t, task)
		require.Equal(t, ReasonInProgress, result.Reason)
		require.ErrorIs(t, result.Err, ErrLocked)
	}

	release()
	require.Equal(t, StatusSucceeded, wait(t, first).Status)
	require.NotEqual(t, ReasonInProgress, h.coordinator.IsLocked().Reason)
}

func TestFailedPullKeepsPreviousData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Equal(t, StatusSucceeded, wait(t, h.coordinator.Pull(ctx, false)).Status)
	before, err := os.ReadFile(h.artifact)
	require.NoError(t, err)

	h.srv.FailWith(http.StatusServiceUnavailable)
	result := wait(t, h.coordinator.Pull(ctx, true))
	require.True(t, result.Started)
	require.Equal(t, StatusFailed, result.Status)

	var transportErr *pys.TransportError
	require.True(t, errors.As(result.Err, &transportErr))
	require.Equal(t, http.StatusServiceUnavailable, transportErr.Status)

	_, err = os.Stat(h.artifact + ".lock")
	require.True(t, errors.Is(err, os.ErrNotExist))

	after, err := os.ReadFile(h.artifact)
	require.NoError(t, err)
	require.Equal(t, before, after)

	count, err := h.qry.CountClassifications(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)

	require.Len(t, h.listener.results, 2)
	require.Equal(t, StatusFailed, h.listener.results[1].Status)
	require.NotEmpty(t, h.tel.Find("broken", report_coordinator_pull))
}

func TestPullOutlivesCallerContext(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	task := h.coordinator.Pull(ctx, false)
	cancel()

	require.Equal(t, StatusSucceeded, wait(t, task).Status)
}

func TestAbandonedMarkerExpires(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.MarkerTimeout = time.Hour
	})

	marker := h.artifact + ".lock"
	require.NoError(t, os.WriteFile(marker, []byte("crashed"), 0644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(marker, old, old))

	require.Equal(t, ReasonNoArtifact, h.coordinator.IsLocked().Reason)

	result := wait(t, h.coordinator.Pull(context.Background(), false))
	require.Equal(t, StatusSucceeded, result.Status)
	require.Len(t, h.tel.Find("warning", report_coordinator_marker), 1)
}

func TestListenerErrorsDoNotFailPull(t *testing.T) {
	h := newHarness(t)
	h.listener.err = errors.New("bucket unreachable")

	result := wait(t, h.coordinator.Pull(context.Background(), false))
	require.Equal(t, StatusSucceeded, result.Status)
	require.Len(t, h.tel.Find("warning", report_coordinator_listen), 1)
}

func TestLastResultFromHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, ok := h.coordinator.LastResult(ctx)
	require.False(t, ok)

	result := wait(t, h.coordinator.Pull(ctx, false))

	restarted := NewCoordinator(Options{
		ArtifactPath: h.artifact,
		NewCascade:   h.coordinator.newCascade,
		DB:           h.qry,
		MakeTx:       h.coordinator.makeTx,
	})
	last, ok := restarted.LastResult(ctx)
	require.True(t, ok)
	require.Equal(t, result.ID, last.ID)
	require.Equal(t, StatusSucceeded, last.Status)
	require.Equal(t, result.Stats, last.Stats)
	require.Equal(t, ReasonFresh, restarted.IsLocked().Reason)
}

func TestRunningPullKeepsMarkerAlive(t *testing.T) {
	h := newHarness(t, func(opts *Options) {
		opts.MarkerTimeout = 50 * time.Millisecond
	})
	ctx := context.Background()

	release := h.srv.Hold()
	defer release()

	first := h.coordinator.Pull(ctx, true)
	require.True(t, first.Started())

	// well past the timeout, the running pull still owns the marker
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, ReasonInProgress, h.coordinator.IsLocked().Reason)
	second := h.coordinator.Pull(ctx, true)
	require.False(t, second.Started())
	require.ErrorIs(t, wait(t, second).Err, ErrLocked)

	release()
	require.Equal(t, StatusSucceeded, wait(t, first).Status)
	_, err := os.Stat(h.artifact + ".lock")
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.Empty(t, h.tel.Find("warning", report_coordinator_marker))
}

func TestFinishedPullLeavesForeignMarker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := h.srv.Hold()
	defer release()

	first := h.coordinator.Pull(ctx, true)
	require.True(t, first.Started())

	marker := h.artifact + ".lock"
	require.NoError(t, os.WriteFile(marker, []byte("5f0c7a7e-0000-4000-8000-000000000000 2024-03-01T00:00:00Z\n"), 0644))

	release()
	wait(t, first)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Contains(t, string(data), "5f0c7a7e-0000-4000-8000-000000000000")
	require.Equal(t, ReasonInProgress, h.coordinator.IsLocked().Reason)
	require.Len(t, h.tel.Find("warning", report_coordinator_marker), 1)
}

type lockObserver struct {
	coordinator **Coordinator
	seen        []LockReason
}

func (l *lockObserver) PullFinished(ctx context.Context, result Result) error {
	l.seen = append(l.seen, (*l.coordinator).IsLocked().Reason)
	return nil
}

func TestListenersRunWhileMarkerHeld(t *testing.T) {
	var coordinator *Coordinator
	observer := &lockObserver{coordinator: &coordinator}
	h := newHarness(t, func(opts *Options) {
		opts.Listeners = append(opts.Listeners, observer)
	})
	coordinator = h.coordinator

	wait(t, h.coordinator.Pull(context.Background(), false))
	require.Equal(t, []LockReason{ReasonInProgress}, observer.seen)
	require.Equal(t, ReasonFresh, h.coordinator.IsLocked().Reason)
}
