package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/gosonar/pkg/meter"
	"github.com/itohio/gosonar/pkg/sample"
)

const (
	defaultMaxPoints = 1000
	// Distance axis floor so a flat trace is not magnified into noise.
	minSpan = 10.0
)

// ScopeWidget is a custom Fyne widget that plots distance over time with
// timeout markers.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu    sync.RWMutex
	stats meter.Stats

	// Display buffer (reused for downsampling)
	displaySamples []sample.Sample

	// Auto-scaling
	yMin, yMax float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a new ScopeWidget showing at least window of history.
func New(window time.Duration) *ScopeWidget {
	if window <= 0 {
		window = time.Minute
	}
	s := &ScopeWidget{
		window:           window,
		displaySamples:   make([]sample.Sample, 0, defaultMaxPoints),
		maxDisplayPoints: defaultMaxPoints,
	}
	s.yMin, s.yMax, s.xMin, s.xMax = autoScale(nil, window, time.Now())
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData updates the widget with new measurement data.
// This should be called from the meter callback using fyne.Do().
func (s *ScopeWidget) UpdateData(samples []sample.Sample, stats meter.Stats) {
	s.mu.Lock()
	s.displaySamples = sample.DownsampleSamples(s.displaySamples, samples, s.maxDisplayPoints)
	s.stats = stats
	s.yMin, s.yMax, s.xMin, s.xMax = autoScale(s.displaySamples, s.window, time.Now())
	s.mu.Unlock()

	s.Refresh()
}

// SetWindow changes the minimum time span shown.
func (s *ScopeWidget) SetWindow(window time.Duration) {
	s.mu.Lock()
	s.window = window
	s.mu.Unlock()
}

// autoScale returns the plot ranges for samples. Only successful distances
// shape the Y range; the X range covers at least window.
func autoScale(samples []sample.Sample, window time.Duration, now time.Time) (yMin, yMax float64, xMin, xMax time.Time) {
	yMin, yMax = 0, minSpan
	found := false
	for _, s := range samples {
		if !s.OK {
			continue
		}
		if !found {
			yMin, yMax = s.Distance, s.Distance
			found = true
			continue
		}
		yMin = min(yMin, s.Distance)
		yMax = max(yMax, s.Distance)
	}

	if span := yMax - yMin; span < minSpan {
		mid := (yMax + yMin) / 2
		yMin, yMax = mid-minSpan/2, mid+minSpan/2
	}
	margin := (yMax - yMin) * 0.1
	yMin = max(0, yMin-margin)
	yMax += margin

	if len(samples) == 0 {
		return yMin, yMax, now.Add(-window), now
	}
	xMin = samples[0].Timestamp
	xMax = samples[len(samples)-1].Timestamp
	if xMax.Sub(xMin) < window {
		xMin = xMax.Add(-window)
	}
	return yMin, yMax, xMin, xMax
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	background := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:      s,
		background: background,
		objects:    []fyne.CanvasObject{background},
	}
}
