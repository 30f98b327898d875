package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/pull"
	"pys-backend/internal/scrapers/pys"
	"pys-backend/internal/scrapers/pys/pysmock"
	"pys-backend/test"

	"github.com/stretchr/testify/require"
)

func TestInterruptedPullStillReleasesLock(t *testing.T) {
	srv := pysmock.NewServer(pysmock.Sample())
	defer srv.Close()

	_, qry, makeTx := test.OpenQueries(t)
	artifact := filepath.Join(t.TempDir(), "output.json")
	rec := &telemetry.Recorder{}
	coordinator := pull.NewCoordinator(pull.Options{
		ArtifactPath: artifact,
		NewCascade: func(ctx context.Context) (pull.Cascade, error) {
			session, err := pys.NewSession(pys.SessionOptions{FormUrl: srv.FormUrl()}, rec)
			if err != nil {
				return nil, err
			}
			return pys.NewWalker(session), nil
		},
		DB:     qry,
		MakeTx: makeTx,
		Tel:    rec,
	})

	release := srv.Hold()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	task := coordinator.Pull(ctx, false)
	require.True(t, task.Started())
	cancel()

	var out bytes.Buffer
	done := make(chan pull.Result)
	go func() {
		done <- awaitPull(ctx, task, &out)
	}()

	select {
	case <-done:
		t.Fatal("returned before the pull finished")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	var result pull.Result
	select {
	case result = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("pull did not finish")
	}

	require.Equal(t, pull.StatusSucceeded, result.Status)
	require.Contains(t, out.String(), "interrupted")
	_, err := os.Stat(artifact + ".lock")
	require.True(t, errors.Is(err, os.ErrNotExist))
}
