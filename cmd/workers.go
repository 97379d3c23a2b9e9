package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yungbote/modelforge-backend/internal/jobs/markers"
)

var workersCmd = &cli.Command{
	Name:  "workers",
	Usage: "inspect training workers on this host",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "list workers that left a marker",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
			},
			Action: func(cctx *cli.Context) error {
				cfg, log, err := loadConfig(cctx)
				if err != nil {
					return err
				}
				defer log.Sync()
				list, err := markers.New(cfg.Paths.Markers, log).List()
				if err != nil {
					return err
				}
				if cctx.Bool("json") {
					return printJSON(list)
				}
				tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PID\tSTAGE\tPREDICTOR\tRUN\tAGE")
				for _, m := range list {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", m.PID, m.Stage, m.PredictorID, m.RunID, time.Since(m.StartedAt).Round(time.Second))
				}
				return tw.Flush()
			},
		},
		{
			Name:  "watch",
			Usage: "print worker start and exit events until interrupted",
			Action: func(cctx *cli.Context) error {
				cfg, log, err := loadConfig(cctx)
				if err != nil {
					return err
				}
				defer log.Sync()
				ctx, stop := signalContext(cctx.Context)
				defer stop()
				err = markers.New(cfg.Paths.Markers, log).Watch(ctx, func(ev markers.Event) {
					_ = printJSON(ev)
				})
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			},
		},
	},
}

var reconcileCmd = &cli.Command{
	Name:  "reconcile",
	Usage: "report training runs whose worker is gone",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "fix", Usage: "record a failure on abandoned runs"},
	},
	Action: func(cctx *cli.Context) error {
		a, err := openApp(cctx)
		if err != nil {
			return err
		}
		defer a.Close()
		abandoned, err := a.Services.Predictors.Reconcile(cctx.Context, cctx.Bool("fix"))
		if err != nil {
			return err
		}
		return printJSON(abandoned)
	},
}
