package main

import (
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/yungbote/modelforge-backend/internal/pkg/jsontree"
	"github.com/yungbote/modelforge-backend/internal/services"
)

// The CLI process is the workers' parent, and workers die with it, so
// learn and update always wait. --timeout bounds the wait.
var learnCmd = &cli.Command{
	Name:      "learn",
	Usage:     "train a predictor on a datasource",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		FlagCompany,
		&cli.Int64Flag{Name: "datasource", Usage: "datasource id", Required: true},
		&cli.StringFlag{Name: "target", Usage: "target column; shorthand for a problem definition with only a target"},
		&cli.StringFlag{Name: "problem", Usage: "problem definition file (YAML or JSON)"},
		&cli.StringFlag{Name: "override", Usage: "json_ai override file (YAML or JSON)"},
		&cli.BoolFlag{Name: "delete-datasource-on-fail", Usage: "delete the datasource if training fails"},
		&cli.DurationFlag{Name: "timeout", Usage: "stop waiting after this long (the worker is then killed)"},
	},
	Action: func(cctx *cli.Context) error {
		name := strings.TrimSpace(cctx.Args().First())
		if name == "" {
			return xerrors.New("missing <name>")
		}
		pd, err := problemDefinition(cctx.String("problem"), cctx.String("target"))
		if err != nil {
			return err
		}
		override, err := readTree(cctx.String("override"))
		if err != nil {
			return err
		}

		a, err := openApp(cctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Services.Predictors.Learn(cctx.Context, services.LearnRequest{
			CompanyID:              cctx.Int64(FlagCompany.Name),
			Name:                   name,
			DatasourceID:           cctx.Int64("datasource"),
			ProblemDefinition:      pd,
			Override:               override,
			DeleteDatasourceOnFail: cctx.Bool("delete-datasource-on-fail"),
			Join:                   true,
			JoinTimeout:            cctx.Duration("timeout"),
		})
		return printLaunch(res, err)
	},
}

var updateCmd = &cli.Command{
	Name:      "update",
	Usage:     "retrain a predictor with the current engine",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		FlagCompany,
		&cli.DurationFlag{Name: "timeout", Usage: "stop waiting after this long (the worker is then killed)"},
	},
	Action: func(cctx *cli.Context) error {
		name := strings.TrimSpace(cctx.Args().First())
		if name == "" {
			return xerrors.New("missing <name>")
		}
		a, err := openApp(cctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Services.Predictors.Retrain(cctx.Context, services.RetrainRequest{
			CompanyID:   cctx.Int64(FlagCompany.Name),
			Name:        name,
			Join:        true,
			JoinTimeout: cctx.Duration("timeout"),
		})
		return printLaunch(res, err)
	},
}

type launchOutput struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Exited    bool      `json:"exited"`
	Predictor any       `json:"predictor,omitempty"`
}

func printLaunch(res *services.LaunchResult, err error) error {
	if res == nil {
		return err
	}
	out := launchOutput{RunID: res.RunID, Exited: res.Exited}
	if res.Handle != nil {
		out.PID = res.Handle.PID
		out.StartedAt = res.Handle.StartedAt
	}
	if res.Predictor != nil {
		out.Predictor = res.Predictor
	}
	if perr := printJSON(out); perr != nil {
		return perr
	}
	return err
}

func problemDefinition(path, target string) (map[string]any, error) {
	if path == "" {
		if strings.TrimSpace(target) == "" {
			return nil, xerrors.New("one of --problem or --target is required")
		}
		return map[string]any{"target": strings.TrimSpace(target)}, nil
	}
	tree, err := readTree(path)
	if err != nil {
		return nil, err
	}
	if !tree.IsMap() {
		return nil, xerrors.Errorf("%s: problem definition must be a mapping", path)
	}
	pd := tree.AnyMap()
	if target != "" {
		pd["target"] = strings.TrimSpace(target)
	}
	return pd, nil
}

func readTree(path string) (jsontree.Value, error) {
	if path == "" {
		return jsontree.Null(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return jsontree.Value{}, xerrors.Errorf("read %s: %w", path, err)
	}
	v, err := jsontree.ParseYAML(b)
	if err != nil {
		return jsontree.Value{}, xerrors.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
