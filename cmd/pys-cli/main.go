package main

import (
	"context"

	"pys-backend/cmd/pys-cli/commands"
	"pys-backend/internal/components/telemetry"
	"pys-backend/pkg/serviceutil"
)

func main() {
	t, _ := telemetry.SetupFromEnv(context.Background(), "pys-cli")
	defer t.Shutdown(context.Background())
	commands.ExecuteContext(serviceutil.SignalContext())
}
