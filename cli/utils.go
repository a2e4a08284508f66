package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"go.viam.com/usbinspector/config"
	"go.viam.com/usbinspector/logging"
	"go.viam.com/usbinspector/utils"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	printf(w, format, a...)
}

// Errorf prints a message prefixed with a bold red "Error: " prefix and exits with 1.
func Errorf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgRed).Fprint(w, "Error: ")
	printf(w, format, a...)
	os.Exit(1)
}

// loadConfig reads the --config file, or returns the defaults when none is given.
func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	if path := c.Path(configFlag); path != "" {
		return config.Read(path, logger)
	}
	conf := &config.Config{}
	if err := conf.Ensure(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setup builds the logger, writing to the app's error output, and loads the config.
func setup(c *cli.Context) (*config.Config, logging.Logger, error) {
	logger := logging.NewBlankLogger("usbinspector")
	logger.AddAppender(logging.NewWriterAppender(zapcore.AddSync(c.App.ErrWriter)))
	logger.SetLevel(logging.INFO)
	if c.Bool(debugFlag) || utils.DebugFromEnv() {
		logger.SetLevel(logging.DEBUG)
	}

	conf, err := loadConfig(c, logger)
	if err != nil {
		return nil, nil, err
	}
	if conf.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	logFile := conf.LogFile
	if path := c.Path(logFileFlag); path != "" {
		logFile = path
	}
	if logFile != "" {
		logger.AddAppender(logging.NewFileAppender(logFile))
	}
	return conf, logger, nil
}

func snapshotPath(c *cli.Context, conf *config.Config) (string, error) {
	if path := c.Path(snapshotFlag); path != "" {
		return path, nil
	}
	if conf.Snapshot != "" {
		return conf.Snapshot, nil
	}
	return "", errors.Errorf("no device snapshot given; pass --%s or set %q in the config", snapshotFlag, "snapshot")
}
