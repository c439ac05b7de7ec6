package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/argo-fleet/internal/config"
	"github.com/rxtech-lab/argo-fleet/internal/dashboard"
	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/report"
	"github.com/rxtech-lab/argo-fleet/internal/storage"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"github.com/rxtech-lab/argo-fleet/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const shutdownTimeout = 30 * time.Second

func loadConfig(cmd *cli.Command) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, nil, err
	}

	log, err := logger.NewLoggerWithConfig(cfg.Log)
	if err != nil {
		return config.Config{}, nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to create logger", err)
	}

	return cfg, log, nil
}

// openApp loads the configuration, wires the fleet and recovers the persisted agents.
func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	recovery, err := a.orch.Recover(ctx)
	if err != nil {
		_ = a.close(ctx)

		return nil, err
	}

	for _, skipped := range recovery.Skipped {
		log.Warn("Agent not recovered", zap.String("agent_id", skipped.ID), zap.String("reason", skipped.Reason))
	}

	return a, nil
}

// runAction runs the fleet until SIGINT or SIGTERM.
func runAction(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}

	defer a.log.Sync() //nolint:errcheck

	if _, err := a.seed(ctx); err != nil {
		_ = a.close(context.WithoutCancel(ctx))

		return err
	}

	if err := startAgents(ctx, a, cmd.Bool("start-all"), cmd.StringSlice("start")); err != nil {
		_ = a.close(context.WithoutCancel(ctx))

		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.tracker.Run(groupCtx) })
	group.Go(func() error { return a.gate.Run(groupCtx) })
	group.Go(func() error { return a.orch.Run(groupCtx) })

	if addr := a.cfg.Metrics.Listen; addr != "" {
		srv := newServer(addr, newRouter(a.registry, a.lastHealth))

		group.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})

		group.Go(func() error {
			<-groupCtx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), 5*time.Second)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		})
	}

	a.log.Info("Fleet running", zap.Int("agents", len(a.orch.List())), zap.String("metrics", a.cfg.Metrics.Listen))

	runErr := group.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := a.close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	return runErr
}

func startAgents(ctx context.Context, a *app, all bool, names []string) error {
	if all {
		names = names[:0]
		for _, snap := range a.orch.List() {
			names = append(names, snap.Config.ID)
		}
	}

	for _, key := range names {
		snap, err := a.resolve(key)
		if err != nil {
			return err
		}

		if err := a.orch.Start(ctx, snap.Config.ID); err != nil {
			return errors.Wrapf(errors.GetCode(err), err, "failed to start agent %s", snap.Config.Name)
		}
	}

	return nil
}

func openStore(ctx context.Context, cmd *cli.Command) (*storage.DuckDB, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	return storage.Open(ctx, cfg.Storage.Path, log)
}

func listAgentsAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.LoadAgents(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, renderAgents(records))

	return nil
}

func createAgentAction(ctx context.Context, cmd *cli.Command) error {
	data, err := os.ReadFile(cmd.String("file"))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "failed to read agent file", err)
	}

	var agentCfg types.AgentConfig
	if err := yaml.Unmarshal(data, &agentCfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "failed to decode agent file", err)
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx)) //nolint:errcheck

	if err := a.cfg.CheckVenue(agentCfg.Venue); err != nil {
		return err
	}

	id, err := a.orch.Create(ctx, agentCfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "created agent %s (%s)\n", agentCfg.Name, id)

	return nil
}

func deleteAgentAction(ctx context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return errors.New(errors.ErrCodeInvalidParameter, "agent name or id is required")
	}

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx)) //nolint:errcheck

	snap, err := a.resolve(key)
	if err != nil {
		return err
	}

	if err := a.orch.Delete(ctx, snap.Config.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "deleted agent %s (%s)\n", snap.Config.Name, snap.Config.ID)

	return nil
}

func listPositionsAction(ctx context.Context, cmd *cli.Command) error {
	store, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var positions []types.Position

	if cmd.Bool("closed") {
		positions, err = store.QueryClosedPositions(ctx, cmd.String("agent"), types.PositionFilter{
			Symbol:  cmd.String("symbol"),
			Outcome: types.PositionOutcome(cmd.String("outcome")),
			Limit:   int(cmd.Int("limit")),
		})
	} else {
		positions, err = store.LoadActivePositions(ctx)
		positions = filterByAgent(positions, cmd.String("agent"))
	}

	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, renderPositions(positions))

	return nil
}

func filterByAgent(positions []types.Position, agentID string) []types.Position {
	if agentID == "" {
		return positions
	}

	out := positions[:0]
	for _, p := range positions {
		if p.AgentID == agentID {
			out = append(out, p)
		}
	}

	return out
}

func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}

	if out := cmd.String("output"); out != "" {
		return os.WriteFile(out, []byte(schema), 0o644)
	}

	fmt.Fprintln(cmd.Root().Writer, schema)

	return nil
}

// reportPath is --path, or report.path from the config.
func reportPath(cmd *cli.Command) (string, error) {
	if path := cmd.String("path"); path != "" {
		return path, nil
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return "", err
	}

	if cfg.Report.Path == "" {
		return "", errors.New(errors.ErrCodeInvalidConfig, "status report is disabled")
	}

	return cfg.Report.Path, nil
}

func statusAction(_ context.Context, cmd *cli.Command) error {
	path, err := reportPath(cmd)
	if err != nil {
		return err
	}

	status, err := report.Read(path)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.Root().Writer, renderStatus(status))

	return nil
}

func watchAction(ctx context.Context, cmd *cli.Command) error {
	path, err := reportPath(cmd)
	if err != nil {
		return err
	}

	model := dashboard.NewModel(func() (report.Status, error) { return report.Read(path) }, cmd.Duration("refresh"))

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	return err
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "fleet",
		Usage: "Run and inspect a small fleet of risk-gated trading agents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the fleet config file (defaults to ./fleet.yaml or ./configs/fleet.yaml)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Recover the fleet and run it until interrupted",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "start",
						Usage: "Start these agents (name or id) after recovery",
					},
					&cli.BoolFlag{
						Name:  "start-all",
						Usage: "Start every agent after recovery",
					},
				},
				Action: runAction,
			},
			{
				Name:  "agents",
				Usage: "Manage persisted agents",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List persisted agents",
						Action: listAgentsAction,
					},
					{
						Name:  "create",
						Usage: "Create an agent from a YAML file",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "file",
								Aliases:  []string{"f"},
								Usage:    "Agent YAML file",
								Required: true,
							},
						},
						Action: createAgentAction,
					},
					{
						Name:      "delete",
						Usage:     "Delete an agent, force-closing its positions",
						ArgsUsage: "<name|id>",
						Action:    deleteAgentAction,
					},
				},
			},
			{
				Name:  "positions",
				Usage: "List positions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Only positions of this agent id"},
					&cli.BoolFlag{Name: "closed", Usage: "List closed positions instead of active ones"},
					&cli.StringFlag{Name: "symbol", Usage: "Only closed positions of this symbol"},
					&cli.StringFlag{Name: "outcome", Usage: "Only closed positions that were a win or a loss"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of closed positions"},
				},
				Action: listPositionsAction,
			},
			{
				Name:  "status",
				Usage: "Show the latest status report",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Report file (defaults to report.path from the config)"},
				},
				Action: statusAction,
			},
			{
				Name:  "watch",
				Usage: "Follow the status report in an interactive dashboard",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Report file (defaults to report.path from the config)"},
					&cli.DurationFlag{Name: "refresh", Value: 2 * time.Second, Usage: "Reload interval"},
				},
				Action: watchAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the config file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the schema to this file"},
				},
				Action: schemaAction,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
