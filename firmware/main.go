//go:build tinygo

//go:generate tinygo flash -target=pico

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/gosonar/pkg/report"
	"github.com/itohio/gosonar/pkg/rtc"
	"github.com/itohio/gosonar/pkg/sonar"
)

var (
	serial = machine.Serial
	boot   = time.Now()
)

// echoInput delivers both edges of the echo pin from the GPIO interrupt.
type echoInput struct {
	pin machine.Pin
}

func (e echoInput) SetEdgeHandler(handler func(rising bool)) error {
	return e.pin.SetInterrupt(machine.PinToggle, func(p machine.Pin) {
		handler(p.Get())
	})
}

// bootClock counts microseconds since reset.
type bootClock struct{}

func (bootClock) Micros() uint64 {
	return uint64(time.Since(boot) / time.Microsecond)
}

// serialCommands polls the console for single-character commands.
type serialCommands struct{}

func (serialCommands) Poll(timeout time.Duration) (byte, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if serial.Buffered() > 0 {
			if b, err := serial.ReadByte(); err == nil {
				return b, true
			}
		}
		if !time.Now().Before(deadline) {
			return 0, false
		}
		time.Sleep(SERIAL_POLL_INTERVAL_MS * time.Millisecond)
	}
}

func main() {
	serial.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	PIN_TRIGGER.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_ECHO.Configure(machine.PinConfig{Mode: machine.PinInput})

	printer := report.NewPrinter(serial)

	s, err := sonar.New(
		sonar.DefaultSettings(),
		sonar.Hardware{
			Trigger: PIN_TRIGGER,
			Echo:    echoInput{pin: PIN_ECHO},
			Clock:   bootClock{},
		},
		rtc.New(rtc.DefaultEpoch),
		printer,
	)
	if err != nil {
		halt("sonar: " + err.Error())
	}

	printer.Prompt()

	// Run returns only when its context is done.
	_ = s.Run(context.Background(), serialCommands{})
}

// halt reports a fatal setup error forever.
func halt(msg string) {
	for {
		println(msg)
		time.Sleep(time.Second)
	}
}
