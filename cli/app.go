// Package cli contains the usbinspector command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	configFlag   = "config"
	debugFlag    = "debug"
	logFileFlag  = "log-file"
	snapshotFlag = "snapshot"
	allFlag      = "all"
	jsonFlag     = "json"
	traceFlag    = "trace"
	sysfsFlag    = "sysfs"
)

var snapshotPathFlag = &cli.PathFlag{
	Name:    snapshotFlag,
	Aliases: []string{"s"},
	Usage:   "read devices from snapshot `FILE` (overrides the config)",
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "usbinspector",
		Usage:           "find USB storage devices and their vendor and product ids",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  logFileFlag,
				Usage: "also write JSON logs to `FILE` (overrides the config)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list attached USB storage devices",
				Flags: []cli.Flag{
					snapshotPathFlag,
					&cli.BoolFlag{
						Name:  allFlag,
						Usage: "also show devices that are not USB storage",
					},
					&cli.BoolFlag{
						Name:  jsonFlag,
						Usage: "print JSON instead of a table",
					},
					&cli.BoolFlag{
						Name:  sysfsFlag,
						Usage: "list the block devices of this Linux machine instead of a snapshot",
					},
					&cli.BoolFlag{
						Name:  traceFlag,
						Usage: "log every step of identifier resolution",
					},
				},
				Action: ListAction,
			},
			{
				Name:      "classify",
				Usage:     "show the bus category of device instance paths",
				ArgsUsage: "PATH...",
				Action:    ClassifyAction,
			},
			{
				Name:      "parse",
				Usage:     "extract vendor id, product id and serial number from device paths",
				ArgsUsage: "PATH...",
				Action:    ParseAction,
			},
			{
				Name:   "watch",
				Usage:  "list devices again whenever the snapshot file changes",
				Flags:  []cli.Flag{snapshotPathFlag},
				Action: WatchAction,
			},
			{
				Name:   "version",
				Usage:  "print version info for this program",
				Action: VersionAction,
			},
		},
	}
}
