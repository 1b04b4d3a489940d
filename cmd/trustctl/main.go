// trustctl is the operations CLI for the trust-score engine: it scores
// analysis results, explains them, trains and queries the ensemble, and
// manages the score history store.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/trustiq/trust-engine/internal/engine"
	"github.com/trustiq/trust-engine/internal/logging"
	"github.com/trustiq/trust-engine/internal/store"
)

const (
	appConfigKey = "app-config"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.1.0-dev"
	commit  = ""

	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to the config file (default: $HOME/.trustiq/config.yaml)",
	}

	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Path to the SQLite database file",
	}

	registryFlag = &cli.StringFlag{
		Name:  "registry",
		Usage: "Path to the persisted model registry",
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
	}

	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}
)

// appConfig carries the resolved configuration and shared handles to
// every command.
type appConfig struct {
	Config Config
	Engine *engine.Engine
	Store  *store.Store
}

func getConfig(c *cli.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "trustctl",
		Version:         fmt.Sprintf("%s (commit: %s)", version, commit),
		Compiled:        time.Now(),
		Usage:           "Trust score engine operations",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			configFlag,
			dbFlag,
			registryFlag,
			formatFlag,
			debugFlag,
		},
		Commands: []*cli.Command{
			scoreCmd,
			insightsCmd,
			anomaliesCmd,
			forecastCmd,
			trainCmd,
			predictCmd,
			updateCmd,
			modelsCmd,
			historyCmd,
		},
		Metadata: map[string]any{},
		Before:   setup,
		After:    teardown,
	}
}

func setup(c *cli.Context) error {
	configPath := c.String(configFlag.Name)
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg.applyEnv()

	if v := c.String(dbFlag.Name); v != "" {
		cfg.DBPath = v
	}
	if v := c.String(registryFlag.Name); v != "" {
		cfg.RegistryPath = v
	}
	if v := c.String(formatFlag.Name); v != "" {
		cfg.Format = v
	}
	if cfg.Format != formatJSON && cfg.Format != formatYAML {
		return fmt.Errorf("unknown output format %q", cfg.Format)
	}

	level := cfg.LogLevel
	if c.Bool(debugFlag.Name) {
		level = "debug"
	}
	logging.Init(level, false)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	c.App.Metadata[appConfigKey] = &appConfig{
		Config: cfg,
		Engine: engine.New(slog.Default()),
		Store:  db,
	}
	return nil
}

func teardown(c *cli.Context) error {
	if raw, ok := c.App.Metadata[appConfigKey]; ok {
		if app, ok := raw.(*appConfig); ok && app.Store != nil {
			return app.Store.Close()
		}
	}
	return nil
}
