package chrono

import (
	"context"
	"testing"
	"time"

	"pys-backend/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func TestStandardCronRejectsBadSpec(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewStandardCron(ctx, &telemetry.Recorder{})
	require.Error(t, c.Cron("not a spec", func() {}))
	require.NoError(t, c.Cron("0 3 * * *", func() {}))
}

func TestStandardTimeLocation(t *testing.T) {
	now := NewStandardTime().Now()
	require.Equal(t, "America/Mexico_City", now.Location().String())

	fixed := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, fixed.Equal(FixedTime(fixed).Now()))
}
