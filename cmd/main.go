package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yungbote/modelforge-backend/internal/pkg/version"
)

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to the YAML config file",
	EnvVars: []string{"MODELFORGE_CONFIG"},
}

var FlagLogMode = &cli.StringFlag{
	Name:    "log-mode",
	Usage:   "development, production or nop",
	EnvVars: []string{"LOG_MODE"},
}

var FlagCompany = &cli.Int64Flag{
	Name:  "company",
	Usage: "tenant id",
	Value: 0,
}

func main() {
	app := &cli.App{
		Name:    "modelforge",
		Usage:   "training-job orchestration for predictors",
		Version: version.Version,
		Flags: []cli.Flag{
			FlagConfig,
			FlagLogMode,
		},
		Commands: []*cli.Command{
			serveCmd,
			workerCmd,
			datasourceCmd,
			learnCmd,
			updateCmd,
			workersCmd,
			reconcileCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
