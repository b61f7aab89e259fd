package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"classgrid/internal/config"
	appLog "classgrid/internal/log"
	"classgrid/internal/schedule"
	"classgrid/internal/store"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("classgrid failed", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "classgrid",
		Usage:   "class schedule ingestion and room availability service",
		Version: version,
		// room ids may contain commas; repeat --room instead
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			configFlag, listenFlag, timezoneFlag, storeDriverFlag, storeDSNFlag, logLevelFlag, logFormatFlag,
		},
		Commands: []*cli.Command{
			serveCmd,
			importCmd,
			validateCmd,
			queryCmd,
		},
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides, then configures logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(configFlagName)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if v := c.String(listenFlagName); v != "" {
		cfg.Listen = v
	}
	if v := c.String(timezoneFlagName); v != "" {
		cfg.Timezone = v
	}
	if v := c.String(storeDriverFlagName); v != "" {
		cfg.Store.Driver = v
	}
	if v := c.String(storeDSNFlagName); v != "" {
		cfg.Store.DSN = v
	}
	if v := c.String(logLevelFlagName); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String(logFormatFlagName); v != "" {
		cfg.Log.Format = v
	}
	if c.Bool(strictFlagName) {
		cfg.Ingest.Strict = true
	}
	cfg.Normalize()

	appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	appLog.SetFormat(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openService opens the configured store and wraps it in the query service.
// The returned close func releases the store.
func openService(cfg *config.Config) (*schedule.Service, func(), error) {
	st, err := store.Open(store.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	svc, err := schedule.NewService(st, loc)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, func() {
		if err := st.Close(); err != nil {
			appLog.Error("store close failed", err)
		}
	}, nil
}
