package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosonar/pkg/link"
	"github.com/itohio/gosonar/pkg/sonar"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSensorTab(state),
		createDisplayTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 450))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 450))
	d.Show()
}

// saveConfig validates and writes the configuration, reporting failures in
// a dialog.
func saveConfig(state *appState) bool {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(fmt.Errorf("invalid settings: %w", err), state.window)
		return false
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// reconnect restarts the measurement chain if the device is connected.
func reconnect(state *appState) {
	if state.device == nil || !state.device.IsConnected() {
		return
	}
	disconnect(state)
	handleConnect(state)
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := link.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Description
			if port.Pico {
				displayName += " [Pico]"
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
		},
		OnSubmit: func() {
			previous := state.cfg.Serial
			if portSelect.Selected != "" {
				selectedPort := portMap[portSelect.Selected]
				if selectedPort == "" {
					selectedPort = portSelect.Selected // Fallback to selected text
				}
				state.cfg.Serial.Port = selectedPort
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			if !saveConfig(state) {
				return
			}
			if state.cfg.Serial != previous && !state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSensorTab creates the measurement cycle tab. Changes reach the
// firmware only through a rebuild; the simulated sensor picks them up on
// reconnect.
func createSensorTab(state *appState) *container.TabItem {
	sensor := &state.cfg.Sensor

	deadlineEntry := widget.NewEntry()
	deadlineEntry.SetText(sensor.Deadline.String())

	triggerEntry := widget.NewEntry()
	triggerEntry.SetText(sensor.TriggerWidth.String())

	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(sensor.Interval.String())

	speedEntry := widget.NewEntry()
	speedEntry.SetText(strconv.FormatFloat(sensor.SpeedOfSound, 'f', 4, 64))

	rangeLabel := widget.NewLabel("")
	updateRange := func() {
		rangeLabel.SetText(fmt.Sprintf("%.0f cm", sonar.MaxRange(sensor.Deadline, float32(sensor.SpeedOfSound))))
	}
	updateRange()

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Echo Deadline", Widget: deadlineEntry},
			{Text: "Trigger Width", Widget: triggerEntry},
			{Text: "Interval", Widget: intervalEntry},
			{Text: "Speed of Sound (cm/µs)", Widget: speedEntry},
			{Text: "Max Range", Widget: rangeLabel},
		},
		OnSubmit: func() {
			previous := *sensor
			if d, err := time.ParseDuration(deadlineEntry.Text); err == nil {
				sensor.Deadline = d
			}
			if d, err := time.ParseDuration(triggerEntry.Text); err == nil {
				sensor.TriggerWidth = d
			}
			if d, err := time.ParseDuration(intervalEntry.Text); err == nil {
				sensor.Interval = d
			}
			if v, err := strconv.ParseFloat(speedEntry.Text, 64); err == nil {
				sensor.SpeedOfSound = v
			}
			if !saveConfig(state) {
				*sensor = previous
				return
			}
			updateRange()
			if state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Sensor", form)
}

// createDisplayTab creates the Display configuration tab.
func createDisplayTab(state *appState) *container.TabItem {
	windowEntry := widget.NewEntry()
	windowEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Display.WindowSeconds))

	averageEntry := widget.NewEntry()
	averageEntry.SetText(strconv.Itoa(state.cfg.Display.AverageSamples))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Average Samples (0=disabled)", Widget: averageEntry},
		},
		OnSubmit: func() {
			previousAverage := state.cfg.Display.AverageSamples
			if ws, err := strconv.ParseFloat(windowEntry.Text, 64); err == nil && ws > 0 {
				state.cfg.Display.WindowSeconds = ws
			}
			if avg, err := strconv.Atoi(averageEntry.Text); err == nil {
				state.cfg.Display.AverageSamples = avg
			}
			if !saveConfig(state) {
				return
			}

			state.meter.SetWindow(state.cfg.Window())
			state.scope.SetWindow(state.cfg.Window())
			if state.cfg.Display.AverageSamples != previousAverage {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Display", form)
}

// createMockTab creates the simulated sensor tab. The target distance is
// applied immediately.
func createMockTab(state *appState) *container.TabItem {
	mock := &state.cfg.Mock

	distance := widget.NewSlider(0, 450)
	distance.Step = 1
	distance.Value = mock.Distance
	distanceLabel := widget.NewLabel(fmt.Sprintf("%.0f cm", mock.Distance))
	distance.OnChanged = func(v float64) {
		distanceLabel.SetText(fmt.Sprintf("%.0f cm", v))
		if m, ok := state.device.(*link.Mock); ok {
			_ = m.SetDistance(v)
		}
	}

	noiseEntry := widget.NewEntry()
	noiseEntry.SetText(fmt.Sprintf("%.2f", mock.Noise))

	dropEntry := widget.NewEntry()
	dropEntry.SetText(fmt.Sprintf("%.2f", mock.DropRate))

	delayEntry := widget.NewEntry()
	delayEntry.SetText(mock.EchoDelay.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Distance", Widget: container.NewBorder(nil, nil, nil, distanceLabel, distance)},
			{Text: "Noise (cm)", Widget: noiseEntry},
			{Text: "Drop Rate (0..1)", Widget: dropEntry},
			{Text: "Echo Delay", Widget: delayEntry},
		},
		OnSubmit: func() {
			previous := *mock
			mock.Distance = distance.Value
			if v, err := strconv.ParseFloat(noiseEntry.Text, 64); err == nil {
				mock.Noise = v
			}
			if v, err := strconv.ParseFloat(dropEntry.Text, 64); err == nil {
				mock.DropRate = v
			}
			if d, err := time.ParseDuration(delayEntry.Text); err == nil {
				mock.EchoDelay = d
			}
			if !saveConfig(state) {
				*mock = previous
				return
			}
			if state.useMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
