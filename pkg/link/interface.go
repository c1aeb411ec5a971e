package link

import (
	"errors"

	"github.com/itohio/gosonar/pkg/report"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
)

// Device defines the interface for sonar devices (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Readings() <-chan report.Reading
	Start() error
	Stop() error
	IsConnected() bool
	Running() bool // Measurements are enabled
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
