package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"

	"github.com/itohio/gosonar/pkg/meter"
	"github.com/itohio/gosonar/pkg/sample"
)

var (
	gridColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	axisColor    = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255} // Orange
	timeoutColor = color.RGBA{R: 220, G: 50, B: 50, A: 255}
	labelColor   = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

// frame maps distance and time onto the plot area.
type frame struct {
	x, y, w, h float32
	yMin, yMax float64
	xMin, xMax time.Time
}

// point returns the pixel position of distance d at time t, clamped to the
// plot area.
func (f frame) point(t time.Time, d float64) fyne.Position {
	span := f.xMax.Sub(f.xMin).Seconds()
	fx := float32(0)
	if span > 0 {
		fx = float32(t.Sub(f.xMin).Seconds() / span)
	}
	fy := float32((d - f.yMin) / (f.yMax - f.yMin))

	fx = math32.Max(0, math32.Min(1, fx))
	fy = math32.Max(0, math32.Min(1, fy))

	return fyne.NewPos(f.x+fx*f.w, f.y+f.h-fy*f.h)
}

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope      *ScopeWidget
	background *canvas.Rectangle
	objects    []fyne.CanvasObject
	lastSize   fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.background.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the canvas objects from the current data.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	samples := r.scope.displaySamples
	stats := r.scope.stats
	f := frame{
		yMin: r.scope.yMin, yMax: r.scope.yMax,
		xMin: r.scope.xMin, xMax: r.scope.xMax,
	}
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	const (
		marginLeft   = 60
		marginRight  = 20
		marginTop    = 30
		marginBottom = 40
	)
	f.x, f.y = marginLeft, marginTop
	f.w = size.Width - marginLeft - marginRight
	f.h = size.Height - marginTop - marginBottom

	r.objects = []fyne.CanvasObject{r.background}
	r.drawGrid(f)
	r.drawTrace(f, samples)
	r.drawTimeouts(f, samples)
	r.drawStats(f, stats)
}

func (r *scopeRenderer) drawGrid(f frame) {
	const hLines, vLines = 8, 10

	for i := range hLines + 1 {
		y := f.y + float32(i)*f.h/hLines
		r.line(gridColor, 1, fyne.NewPos(f.x, y), fyne.NewPos(f.x+f.w, y))

		value := f.yMax - float64(i)*(f.yMax-f.yMin)/hLines
		r.text(fmt.Sprintf("%.1f cm", value), axisColor, 10, fyne.TextAlignTrailing, fyne.NewPos(f.x-5, y-6))
	}

	span := f.xMax.Sub(f.xMin)
	for i := range vLines + 1 {
		x := f.x + float32(i)*f.w/vLines
		r.line(gridColor, 1, fyne.NewPos(x, f.y), fyne.NewPos(x, f.y+f.h))

		// Seconds before the newest sample.
		ago := span - time.Duration(i)*span/vLines
		r.text(fmt.Sprintf("-%.0fs", ago.Seconds()), axisColor, 10, fyne.TextAlignCenter, fyne.NewPos(x-20, f.y+f.h+5))
	}
}

// drawTrace connects consecutive successful samples. A timeout breaks the
// trace.
func (r *scopeRenderer) drawTrace(f frame, samples []sample.Sample) {
	var prev *fyne.Position
	for _, s := range samples {
		if !s.OK {
			prev = nil
			continue
		}
		p := f.point(s.Timestamp, s.Distance)
		if prev != nil {
			r.line(traceColor, 1.5, *prev, p)
		}
		prev = &p
	}
}

// drawTimeouts marks every failed cycle with a vertical line.
func (r *scopeRenderer) drawTimeouts(f frame, samples []sample.Sample) {
	for _, s := range samples {
		if s.OK {
			continue
		}
		top := f.point(s.Timestamp, f.yMax)
		bottom := f.point(s.Timestamp, f.yMin)
		r.line(timeoutColor, 1, top, bottom)
	}
}

func (r *scopeRenderer) drawStats(f frame, st meter.Stats) {
	if st.Count == 0 {
		r.text("no data", labelColor, 12, fyne.TextAlignLeading, fyne.NewPos(f.x+10, 8))
		return
	}

	last := "timeout"
	if st.Last.OK {
		last = fmt.Sprintf("%.1f cm", st.Last.Distance)
	}
	label := fmt.Sprintf("%s   min %.1f  max %.1f  mean %.1f cm   %+.1f cm/s   lost %.0f%%",
		last, st.Min, st.Max, st.Mean, st.Velocity, st.FailureRate()*100)
	r.text(label, labelColor, 12, fyne.TextAlignLeading, fyne.NewPos(f.x+10, 8))
}

func (r *scopeRenderer) line(c color.Color, width float32, from, to fyne.Position) {
	l := canvas.NewLine(c)
	l.Position1 = from
	l.Position2 = to
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, c color.Color, size float32, align fyne.TextAlign, pos fyne.Position) {
	t := canvas.NewText(s, c)
	t.TextSize = size
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}
