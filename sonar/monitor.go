package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"

	"github.com/itohio/gosonar/pkg/config"
	"github.com/itohio/gosonar/pkg/link"
	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/meter"
	"github.com/itohio/gosonar/pkg/sample"
	"github.com/itohio/gosonar/pkg/scope"
)

// Throttle scope updates to ~60 FPS.
const updateInterval = 16 * time.Millisecond

//nolint:gochecknoglobals // Cobra command tree.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Open the graphical distance monitor.",
	Args:  cobra.NoArgs,
	RunE:  runMonitor,
}

func runMonitor(_ *cobra.Command, _ []string) error {
	application := app.NewWithID("com.itohio.gosonar")

	window := application.NewWindow("Sonar")
	window.Resize(fyne.NewSize(1200, 700))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: opts.configPath,
		useMock:    opts.mock,
		meter:      meter.New(cfg),
		scope:      scope.New(cfg.Window()),
		window:     window,
	}

	state.meter.OnUpdate(state.onMeterUpdate)

	toolbar := createToolbar(state)
	window.SetContent(container.NewBorder(toolbar, nil, nil, nil, state.scope))
	window.SetOnClosed(func() {
		closeMeasurementChain(state.chain)
		state.chain = nil
	})

	window.ShowAndRun()
	return nil
}

// measurementChain tracks the components of the measurement chain for graceful shutdown.
type measurementChain struct {
	device         link.Device
	samplesStream  <-chan sample.Sample
	meterGoroutine chan struct{} // Closed when meter goroutine exits
}

// appState holds the application state. Fields are touched from the Fyne
// main thread only, except where noted.
type appState struct {
	cfg        *config.Config
	configPath string
	useMock    bool

	device link.Device
	chain  *measurementChain
	meter  *meter.Meter
	scope  *scope.ScopeWidget
	window fyne.Window

	connectBtn *widget.Button
	startBtn   *widget.Button
	stopBtn    *widget.Button
	status     *widget.Label

	// Throttling for scope updates (meter goroutine)
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the toolbar with Connect, Settings, Start and Stop
// buttons and a status label.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("Connect", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})
	state.startBtn = widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
		handleControl(state, true)
	})
	state.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		handleControl(state, false)
	})
	state.status = widget.NewLabel("")

	updateControls(state)

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(state.connectBtn, settingsBtn, state.startBtn, state.stopBtn), // left
		nil, // right
		state.status,
	)
}

// updateControls syncs button states and the status line with the device.
func updateControls(state *appState) {
	connected := state.device != nil && state.device.IsConnected()
	running := connected && state.device.Running()

	if connected {
		state.connectBtn.SetText("Disconnect")
		state.connectBtn.SetIcon(theme.LogoutIcon())
	} else {
		state.connectBtn.SetText("Connect")
		state.connectBtn.SetIcon(theme.LoginIcon())
	}

	setEnabled(state.startBtn, connected && !running)
	setEnabled(state.stopBtn, running)
	state.status.SetText(statusText(state, connected, running))
}

func statusText(state *appState, connected, running bool) string {
	source := state.cfg.Serial.Port
	if state.useMock {
		source = "simulated sensor"
	}

	switch {
	case !connected:
		return "Disconnected"
	case running:
		return fmt.Sprintf("%s: measuring every %v", source, state.cfg.Sensor.Interval)
	default:
		return fmt.Sprintf("%s: idle", source)
	}
}

func setEnabled(btn *widget.Button, enabled bool) {
	if enabled {
		btn.Enable()
	} else {
		btn.Disable()
	}
}

// handleControl starts or stops measurements.
func handleControl(state *appState, start bool) {
	if state.device == nil || !state.device.IsConnected() {
		return
	}

	var err error
	if start {
		err = state.device.Start()
	} else {
		err = state.device.Stop()
	}
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}

	// The device reports the new state asynchronously.
	go func() {
		time.Sleep(2 * state.cfg.Sensor.PollTimeout)
		fyne.Do(func() { updateControls(state) })
	}()
}

// closeMeasurementChain gracefully closes the measurement chain.
// Waits for the meter goroutine to drain the stream.
func closeMeasurementChain(chain *measurementChain) {
	if chain == nil {
		return
	}

	if chain.device != nil {
		if err := chain.device.Close(); err != nil {
			logger.Warnf(context.Background(), "close device: %v", err)
		}
	}

	if chain.meterGoroutine != nil {
		<-chain.meterGoroutine
	}
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.device != nil && state.device.IsConnected() {
		disconnect(state)
		return
	}

	device := newDevice(state.cfg, state.useMock)
	if err := device.Connect(); err != nil {
		dialog.ShowError(fmt.Errorf("failed to connect: %w", err), state.window)
		return
	}
	state.device = device

	state.meter.ResetShutdown()
	state.meter.Clear()

	readings := device.Readings()
	baseStream := sample.NewConverter(500)(readings)

	samplesStream := baseStream
	if n := state.cfg.Display.AverageSamples; n > 0 {
		samplesStream = sample.NewAveragingConverter(n, 500)(baseStream)
	}

	meterDone := make(chan struct{})
	go func() {
		defer close(meterDone)
		state.meter.ProcessSamples(samplesStream)
	}()

	state.chain = &measurementChain{
		device:         device,
		samplesStream:  samplesStream,
		meterGoroutine: meterDone,
	}

	updateControls(state)
}

func disconnect(state *appState) {
	closeMeasurementChain(state.chain)
	state.chain = nil
	state.device = nil
	updateControls(state)
}

// onMeterUpdate pushes meter data to the scope at most every updateInterval.
// Runs on the meter goroutine.
func (state *appState) onMeterUpdate(samples []sample.Sample, stats meter.Stats) {
	state.updateMu.Lock()
	now := time.Now()
	if now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	fyne.Do(func() {
		state.scope.UpdateData(samples, stats)
		updateControls(state)
	})
}
