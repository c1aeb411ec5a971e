//go:build rp2040

package main

import "machine"

const (
	// HC-SR04 wiring. ECHO is 5 V: use a divider to 3.3 V.
	PIN_TRIGGER = machine.GP15
	PIN_ECHO    = machine.GP14

	// Serial configuration. USB CDC ignores the rate; it applies when the
	// console is routed to UART0.
	UART_BAUD_RATE = 115200

	// Input polling granularity while waiting for a command.
	SERIAL_POLL_INTERVAL_MS = 1
)
