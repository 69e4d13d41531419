package main

import (
	"context"
	"log/slog"
	"os"

	"gamedex-backend/cmd/gamedex-cli/commands"
	"gamedex-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()

	t, err := telemetry.SetupFromEnv(ctx, "gamedex-cli")
	if err != nil {
		slog.Error("failed to setup telemetry", "err", err)
		os.Exit(1)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	commands.ExecuteContext(ctx)
}
