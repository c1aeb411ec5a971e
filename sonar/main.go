// Command gosonar monitors an HC-SR04 range finder running the gosonar
// firmware, or a simulated one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/link"
	"github.com/itohio/gosonar/pkg/logger"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath     string
	port           string
	mock           bool
	logLevel       string
	averageSamples int
}

var (
	//nolint:gochecknoglobals // Bound to Cobra flags.
	opts options

	//nolint:gochecknoglobals // Cobra command tree.
	rootCmd = &cobra.Command{
		Use:   "gosonar",
		Short: "Monitor an ultrasonic range finder.",
		Long: `Connects to the gosonar firmware over USB serial, starts and stops
measurements and displays the distance history.

Without a subcommand the graphical monitor is started. Use --mock to run the
measurement loop against a simulated sensor instead of hardware.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		RunE:              runMonitor,
	}
)

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultFilename, "path to configuration file")
	flags.StringVarP(&opts.port, "port", "p", "", "serial port override (e.g., COM3 or /dev/ttyACM0)")
	flags.BoolVar(&opts.mock, "mock", false, "use a simulated sensor instead of the serial port")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.IntVar(&opts.averageSamples, "average-samples", -1, "number of samples to average (0 = disabled, overrides config)")

	rootCmd.AddCommand(monitorCmd, consoleCmd, portsCmd, versionCmd)
}

// cfg is loaded once flags are parsed.
//
//nolint:gochecknoglobals // Shared by subcommands after setup.
var cfg *config.Config

// setup loads the configuration, applies flag overrides and configures logging.
func setup(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.port != "" {
		loaded.Serial.Port = opts.port
	}
	if opts.averageSamples >= 0 {
		loaded.Display.AverageSamples = opts.averageSamples
	}
	if opts.logLevel != "" {
		loaded.Log.Level = opts.logLevel
	}

	level, ok := logger.ParseLevel(loaded.Log.Level)
	if !ok {
		return fmt.Errorf("unknown log level %q", loaded.Log.Level)
	}
	logger.SetLevel(level)

	cfg = loaded
	return nil
}

// newDevice returns the simulated or serial device selected by flags.
func newDevice(cfg *config.Config, mock bool) link.Device {
	if mock {
		return link.NewMock(cfg)
	}
	return link.New(cfg.Serial.Port, cfg.Serial.BaudRate, link.DefaultBufferSize)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}
