// Package link connects the host tools to a sonar: the firmware over a USB
// serial port, or the measurement core running in-process against the
// simulated sensor.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/itohio/gosonar/pkg/command"
	"github.com/itohio/gosonar/pkg/logger"
	"github.com/itohio/gosonar/pkg/report"
)

const (
	// DefaultBaudRate is the baud rate of the Pico USB CDC console.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the readings channel buffer.
	DefaultBufferSize = 100

	picoVID = "2E8A"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
	Pico        bool
}

type opener func(name string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openSerial(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Serial represents a connection to the sonar firmware.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	open     opener

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	readings  chan report.Reading
	done      chan struct{}
	connected bool
	running   atomic.Bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		open:     openSerial,
		readings: make(chan report.Reading, bufSize),
	}
}

// Ports returns a list of available serial ports. Raspberry Pi Pico boards
// are flagged by their USB vendor ID.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			p := Port{Name: d.Name, Description: d.Name}
			if d.IsUSB {
				p.Pico = strings.EqualFold(d.VID, picoVID)
				if d.Product != "" {
					p.Description = fmt.Sprintf("%s (%s)", d.Product, d.Name)
				}
			}
			result = append(result, p)
		}
		return result, nil
	}
	logger.Debugf(context.Background(), "detailed port list unavailable: %v", err)

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading measurement lines.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	conn, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if d.done != nil {
		// Previous session closed its channel.
		d.readings = make(chan report.Reading, d.bufSize)
	}
	d.conn = conn
	d.done = make(chan struct{})
	d.connected = true

	ctx := logger.WithKV(context.Background(), "port", d.port)
	go d.readLines(ctx, conn, d.readings, d.done)

	logger.Infof(ctx, "connected at %d baud", d.baudRate)
	return nil
}

// Close closes the port, waits for the reader and closes the readings channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	conn, done, readings := d.conn, d.done, d.readings
	d.conn = nil
	d.connected = false
	d.mu.Unlock()

	err := conn.Close()
	if err != nil {
		err = fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		logger.Warnf(context.Background(), "serial reader on %s did not stop", d.port)
		return err
	}
	close(readings)
	d.running.Store(false)

	return err
}

// Readings returns the channel of parsed measurement lines.
func (d *Serial) Readings() <-chan report.Reading {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.readings
}

// Start asks the firmware to begin measuring.
func (d *Serial) Start() error {
	return d.send(command.Start)
}

// Stop asks the firmware to stop measuring.
func (d *Serial) Stop() error {
	return d.send(command.Stop)
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Running reports the last start/stop state announced by the firmware.
func (d *Serial) Running() bool {
	return d.running.Load()
}

func (d *Serial) send(cmd command.Command) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := d.conn.Write([]byte{cmd.Byte()}); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd, err)
	}
	return nil
}

// readLines parses lines from conn until it fails or is closed.
func (d *Serial) readLines(ctx context.Context, conn io.Reader, out chan<- report.Reading, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reading, err := report.Parse(line)
		if err != nil {
			d.handleText(ctx, line, err)
			continue
		}
		reading.Received = time.Now()

		select {
		case out <- reading:
		default:
			logger.Warnf(ctx, "readings channel full, dropping %q", line)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && d.IsConnected() {
		logger.Errorf(ctx, "error reading from serial port: %v", err)
	}
}

// handleText tracks control messages and logs everything else.
func (d *Serial) handleText(ctx context.Context, line string, err error) {
	switch {
	case line == report.Starting:
		d.running.Store(true)
		logger.Infof(ctx, "firmware: %s", line)
	case line == report.Stopping:
		d.running.Store(false)
		logger.Infof(ctx, "firmware: %s", line)
	case errors.Is(err, report.ErrNotReading):
		logger.Debugf(ctx, "firmware: %s", line)
	default:
		logger.Warnf(ctx, "failed to parse line %q: %v", line, err)
	}
}
