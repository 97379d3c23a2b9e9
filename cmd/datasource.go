package main

import (
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	types "github.com/yungbote/modelforge-backend/internal/domain"
	"github.com/yungbote/modelforge-backend/internal/pkg/dbctx"
)

var datasourceCmd = &cli.Command{
	Name:  "datasource",
	Usage: "manage dataset records",
	Subcommands: []*cli.Command{
		{
			Name:      "add",
			Usage:     "register a CSV dataset (local path or gs:// URI)",
			ArgsUsage: "<location>",
			Flags: []cli.Flag{
				FlagCompany,
				&cli.StringFlag{Name: "name", Usage: "dataset name, defaults to the location"},
			},
			Action: func(cctx *cli.Context) error {
				location := strings.TrimSpace(cctx.Args().First())
				if location == "" {
					return xerrors.New("missing <location>")
				}
				a, err := openApp(cctx)
				if err != nil {
					return err
				}
				defer a.Close()

				name := cctx.String("name")
				if name == "" {
					name = location
				}
				ds, err := a.Repos.Datasources.Create(dbctx.Context{Ctx: cctx.Context}, &types.Datasource{
					CompanyID: cctx.Int64(FlagCompany.Name),
					Name:      name,
					Location:  location,
				})
				if err != nil {
					return xerrors.Errorf("create datasource: %w", err)
				}
				return printJSON(ds)
			},
		},
	},
}
