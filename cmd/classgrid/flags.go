package main

import (
	"github.com/urfave/cli/v2"
)

const (
	configFlagName      = "config"
	listenFlagName      = "listen"
	timezoneFlagName    = "timezone"
	storeDriverFlagName = "store-driver"
	storeDSNFlagName    = "store-dsn"
	logLevelFlagName    = "log-level"
	logFormatFlagName   = "log-format"
	strictFlagName      = "strict"

	urlFlagName        = "url"
	dayFlagName        = "day"
	roomFlagName       = "room"
	instructorFlagName = "instructor"
	atFlagName         = "at"
	activeFlagName     = "active"
	jsonFlagName       = "json"
)

var (
	configFlag = &cli.StringFlag{
		Name:    configFlagName,
		Aliases: []string{"c"},
		Usage:   "path to the YAML config file (created with defaults if missing)",
		Value:   "./classgrid.yaml",
		EnvVars: []string{"CLASSGRID_CONFIG"},
	}
	listenFlag = &cli.StringFlag{
		Name:    listenFlagName,
		Usage:   "HTTP listen address, overrides the config file",
		EnvVars: []string{"CLASSGRID_LISTEN"},
	}
	timezoneFlag = &cli.StringFlag{
		Name:    timezoneFlagName,
		Usage:   "IANA reference zone, overrides the config file",
		EnvVars: []string{"CLASSGRID_TIMEZONE"},
	}
	storeDriverFlag = &cli.StringFlag{
		Name:    storeDriverFlagName,
		Usage:   "schedule database driver: sqlite or postgres",
		EnvVars: []string{"CLASSGRID_STORE_DRIVER"},
	}
	storeDSNFlag = &cli.StringFlag{
		Name:    storeDSNFlagName,
		Usage:   "sqlite file path or postgres connection URL",
		EnvVars: []string{"CLASSGRID_STORE_DSN"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    logLevelFlagName,
		Usage:   "debug, info or error",
		EnvVars: []string{"CLASSGRID_LOG_LEVEL"},
	}
	logFormatFlag = &cli.StringFlag{
		Name:    logFormatFlagName,
		Usage:   "text or json",
		EnvVars: []string{"CLASSGRID_LOG_FORMAT"},
	}
	strictFlag = &cli.BoolFlag{
		Name:  strictFlagName,
		Usage: "abort on the first row that fails processing instead of skipping it",
	}

	urlFlag = &cli.StringFlag{
		Name:  urlFlagName,
		Usage: "download the spreadsheet from this URL instead of reading a file",
	}
	dayFlag = &cli.StringFlag{
		Name:  dayFlagName,
		Usage: "weekday filter, e.g. Mon or monday",
	}
	roomFlag = &cli.StringSliceFlag{
		Name:  roomFlagName,
		Usage: "room filter, repeatable",
	}
	instructorFlag = &cli.StringFlag{
		Name:  instructorFlagName,
		Usage: "instructor filter",
	}
	atFlag = &cli.TimestampFlag{
		Name:   atFlagName,
		Usage:  "evaluate at this instant (RFC 3339) instead of now",
		Layout: "2006-01-02T15:04:05Z07:00",
	}
	activeFlag = &cli.BoolFlag{
		Name:  activeFlagName,
		Usage: "only entries in session at --at",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  jsonFlagName,
		Usage: "print JSON instead of a table",
	}
)
