package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/internal/audit"
	"github.com/BaSui01/structflow/internal/database"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Inspect recorded extraction attempts",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print every attempt of one run",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config file (YAML)"},
					&cli.StringFlag{Name: "run", Usage: "run id", Required: true},
				},
				Action: auditShowAction,
			},
		},
	}
}

func auditShowAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), exitFatal)
	}
	if !cfg.Audit.Enabled {
		return cli.Exit("audit is not enabled in the configuration", exitFatal)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	pool, err := database.Open(cfg.Audit, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open audit database: %v", err), exitFatal)
	}
	store, err := audit.NewStore(pool, logger)
	if err != nil {
		_ = pool.Close()
		return cli.Exit(err.Error(), exitFatal)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close audit store failed", zap.Error(err))
		}
	}()

	runID := c.String("run")
	rows, err := store.ListRun(c.Context, runID)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	if len(rows) == 0 {
		return cli.Exit(fmt.Sprintf("run %s not found", runID), exitFatal)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "run %s: %d attempts\n", runID, len(rows))
	for _, r := range rows {
		fmt.Fprintf(w, "  #%d %s %s %dms\n", r.Attempt, r.Outcome, r.Provider, r.DurationMS)
		errs, err := r.ParseErrors()
		if err != nil {
			fmt.Fprintf(w, "      (%v)\n", err)
			continue
		}
		for _, e := range errs {
			fmt.Fprintf(w, "      %s\n", e.Error())
		}
	}
	return nil
}
