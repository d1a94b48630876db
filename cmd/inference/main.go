// Command inference serves knowledge-tracing predictions over HTTP and,
// when KT_GRPC_ADDR is set, gRPC.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/neurobridge-kt/internal/inference/app"
	"github.com/yungbote/neurobridge-kt/internal/platform/shutdown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println(app.Version)
		return
	}

	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "inference: %v\n", err)
		os.Exit(1)
	}
	defer a.Log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a.Log.Info("starting inference service", "version", app.Version, "env", a.Config.Env)
	if err := a.Run(ctx); err != nil {
		a.Log.Error("inference service stopped", "error", err)
		a.Log.Sync()
		os.Exit(1)
	}
}
