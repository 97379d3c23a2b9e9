package main

import (
	"os"

	"github.com/urfave/cli/v2"

	jobrt "github.com/yungbote/modelforge-backend/internal/jobs/runtime"
	"github.com/yungbote/modelforge-backend/internal/jobs/worker"
)

// workerCmd is what the supervisor re-executes. The JobSpec arrives as
// JSON on stdin.
var workerCmd = &cli.Command{
	Name:   "worker",
	Usage:  "run one training stage from a JobSpec on stdin",
	Hidden: true,
	Action: func(cctx *cli.Context) error {
		spec, err := jobrt.DecodeJobSpec(os.Stdin)
		if err != nil {
			return cli.Exit("worker: "+err.Error(), 2)
		}
		a, err := openApp(cctx)
		if err != nil {
			return cli.Exit("worker: "+err.Error(), 1)
		}
		defer a.Close()

		ctx, stop := signalContext(cctx.Context)
		defer stop()

		if err := worker.Run(ctx, a.WorkerDeps(), spec); err != nil {
			return cli.Exit("worker: "+err.Error(), 1)
		}
		return nil
	},
}
