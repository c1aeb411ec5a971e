package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/gosonar/pkg/command"
	"github.com/itohio/gosonar/pkg/link"
	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/report"
)

const commandPoll = 100 * time.Millisecond

//nolint:gochecknoglobals // Cobra command tree.
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Print measurements to stdout.",
	Long: `Connects to the device and prints every measurement line to stdout.
Type 's' and Enter to start measuring, 'p' and Enter to stop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return runConsole(ctx, newDevice(cfg, opts.mock), os.Stdin, cmd.OutOrStdout())
	},
}

// runConsole relays commands from in to dev and readings from dev to out
// until ctx is done or the device goes away.
func runConsole(ctx context.Context, dev link.Device, in io.Reader, out io.Writer) error {
	if err := dev.Connect(); err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warnf(ctx, "close: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	_, _ = fmt.Fprintln(out, report.Prompt)
	go relayCommands(ctx, dev, command.NewReader(in))

	readings := dev.Readings()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-readings:
			if !ok {
				return errors.New("device closed the readings stream")
			}
			_, _ = fmt.Fprintln(out, r)
		}
	}
}

// relayCommands forwards start and stop characters to dev until ctx is
// done or in is exhausted.
func relayCommands(ctx context.Context, dev link.Device, cmds *command.Reader) {
	for ctx.Err() == nil {
		b, ok := cmds.Poll(commandPoll)
		if !ok {
			select {
			case <-cmds.Done():
				if b, ok = cmds.Poll(0); !ok {
					return
				}
			default:
				continue
			}
		}

		var err error
		switch command.Parse(b) {
		case command.Start:
			err = dev.Start()
		case command.Stop:
			err = dev.Stop()
		default:
			continue
		}
		if err != nil {
			logger.Errorf(ctx, "%v", err)
		}
	}
}
