package main

import (
	"github.com/urfave/cli/v2"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "run the admin API and supervise training workers",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address, overrides http.addr",
		},
	},
	Action: func(cctx *cli.Context) error {
		a, err := openApp(cctx)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.Cfg.HTTP.Addr
		if cctx.IsSet("addr") {
			addr = cctx.String("addr")
		}

		ctx, stop := signalContext(cctx.Context)
		defer stop()

		if abandoned, err := a.Services.Predictors.Reconcile(ctx, false); err != nil {
			a.Log.Warn("Startup reconcile failed", "error", err)
		} else if len(abandoned) > 0 {
			a.Log.Warn("Found abandoned training runs; POST /api/reconcile?fix=true to close them", "count", len(abandoned))
		}

		a.Log.Info("Serving", "addr", addr)
		if err := a.Server().Run(ctx, addr); err != nil {
			return err
		}

		a.Log.Info("Waiting for running workers", "timeout", a.Cfg.Worker.JoinTimeout.Duration.String())
		if err := a.Services.Predictors.JoinAll(cctx.Context, a.Cfg.Worker.JoinTimeout.Duration); err != nil {
			a.Log.Warn("Workers still running at shutdown; they will be killed", "error", err)
		}
		return nil
	},
}
