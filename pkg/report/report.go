// Package report renders measurement results as the text lines the firmware
// prints over serial, and parses those lines back on the host.
package report

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gosonar/pkg/sonar"
)

// TimeLayout is the HH:MM:SS prefix of every measurement line.
const TimeLayout = "15:04:05"

// Line fragments as printed by the firmware.
const (
	Prompt   = "Digite 's' para Iniciar ou 'p' para Parar as medições:"
	Starting = "Iniciando medições..."
	Stopping = "Parando medições..."

	distancePrefix = "Distância: "
	distanceSuffix = " cm"
	failure        = "Falha na medição"
	separator      = " - "
)

var (
	// ErrNotReading is returned by Parse for lines that are not measurements.
	ErrNotReading = errors.New("not a measurement line")
)

// Format renders r as one line without the trailing newline.
func Format(r sonar.Result) string {
	stamp := r.Time.Format(TimeLayout)
	if !r.OK() {
		return stamp + separator + failure
	}
	return fmt.Sprintf("%s%s%s%.1f%s", stamp, separator, distancePrefix, r.Distance, distanceSuffix)
}

// Printer writes results and control messages to w, one line each. It
// implements sonar.Reporter.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ sonar.Reporter = (*Printer)(nil)

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Prompt prints the start/stop instructions.
func (p *Printer) Prompt() {
	p.line(Prompt)
}

// Report implements sonar.Reporter.
func (p *Printer) Report(r sonar.Result) {
	p.line(Format(r))
}

// Control implements sonar.Reporter.
func (p *Printer) Control(enabled bool) {
	if enabled {
		p.line(Starting)
	} else {
		p.line(Stopping)
	}
}

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Nothing sensible to do with a write error on a console.
	_, _ = io.WriteString(p.w, s+"\n")
}

// Reading is a measurement line received from the firmware.
type Reading struct {
	Clock    time.Duration // Time of day printed by the firmware
	OK       bool          // false for "Falha na medição"
	Distance float64       // Centimetres, zero when !OK
	Received time.Time     // Host time the line arrived
}

// String renders the reading in the firmware's format.
func (r Reading) String() string {
	stamp := time.Time{}.Add(r.Clock).Format(TimeLayout)
	if !r.OK {
		return stamp + separator + failure
	}
	return fmt.Sprintf("%s%s%s%.1f%s", stamp, separator, distancePrefix, r.Distance, distanceSuffix)
}

// FromResult converts a result produced in-process into a Reading.
func FromResult(r sonar.Result, received time.Time) Reading {
	h, m, s := r.Time.Clock()
	reading := Reading{
		Clock:    time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second,
		OK:       r.OK(),
		Received: received,
	}
	if reading.OK {
		reading.Distance = float64(r.Rounded())
	}
	return reading
}

// Parse decodes one measurement line. Lines that are not measurements, such
// as the prompt or control messages, return ErrNotReading.
func Parse(line string) (Reading, error) {
	line = strings.TrimSpace(line)

	stamp, rest, found := strings.Cut(line, separator)
	if !found || len(stamp) != len(TimeLayout) {
		return Reading{}, ErrNotReading
	}

	t, err := time.Parse(TimeLayout, stamp)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid timestamp %q: %w", stamp, err)
	}
	reading := Reading{
		Clock: time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second,
	}

	switch {
	case rest == failure:
		return reading, nil
	case strings.HasPrefix(rest, distancePrefix) && strings.HasSuffix(rest, distanceSuffix):
		value := strings.TrimSuffix(strings.TrimPrefix(rest, distancePrefix), distanceSuffix)
		d, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Reading{}, fmt.Errorf("invalid distance %q: %w", value, err)
		}
		if d < 0 {
			return Reading{}, fmt.Errorf("negative distance: %v", d)
		}
		reading.OK = true
		reading.Distance = d
		return reading, nil
	default:
		return Reading{}, ErrNotReading
	}
}
