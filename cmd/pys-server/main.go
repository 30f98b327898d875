package main

import (
	"context"
	"flag"

	"pys-backend/internal/app"
	"pys-backend/internal/components/chrono"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/config"
	"pys-backend/pkg/serviceutil"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "The config file to read, a sibling <name>.local.json5 overrides it.")
	initialPull := flag.Bool("pull", false, "Trigger an unforced pull immediately on run.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	tel := InitTelemetry(ctx, *verbose)

	cfg, err := config.Read(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if *initialPull {
		cfg.Pull.OnStart = true
	}

	application, err := app.New(ctx, cfg, tel)
	if err != nil {
		serviceutil.Fatal("init app", err)
	}
	defer application.Close()

	cron := chrono.NewStandardCron(ctx, tel)
	err = application.Schedule(ctx, cron)
	if err != nil {
		serviceutil.Fatal("schedule jobs", err)
	}
	application.Start(ctx)

	serviceutil.StartHttpServer(ctx, cfg.Port, application.Service.Handler())
}

func InitTelemetry(ctx context.Context, verbose bool) telemetry.API {
	telemetry.InitSlog(verbose)

	t, err := telemetry.SetupFromEnv(ctx, "pys-server")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		t.Shutdown(context.Background())
	}()

	var tel telemetry.API = telemetry.SlogAPI{}
	otelAPI, err := telemetry.NewOtelAPI(tel)
	if err != nil {
		serviceutil.Fatal("setup otel reports", err)
	}
	tel = otelAPI
	telemetry.InstrumentPerfStats(ctx, tel)
	return tel
}
