package diagram

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Quadratic plots y = ax² + bx + c over x ∈ [-10, 10] with the vertex and any
// real roots marked. a must not be zero. filename overrides the default
// [QuadraticFilename]. The absolute path of the written file is returned.
func (r *Renderer) Quadratic(a, b, c float64, filename string) (string, error) {
	if err := checkFinite(a, b, c); err != nil {
		return "", err
	}
	if a == 0 {
		return "", fmt.Errorf("%w: coefficient a must not be zero for a quadratic", ErrInvalidInput)
	}

	eq := fmt.Sprintf("y = %sx² + %sx + %s", num(a), num(b), num(c))
	ch := newChart(r.fonts, -10, 10, -20, 20)
	ch.frame("Quadratic Function: "+eq, "x", "y")

	xs, ys := sample(-10, 10, 400, func(x float64) float64 { return a*x*x + b*x + c })
	ch.curve(xs, ys, colBlue, 3, false)

	vx := -b / (2 * a)
	vy := a*vx*vx + b*vx + c
	ch.marker(vx, vy, colRed, 9)
	entries := []legendEntry{
		{label: eq, col: colBlue},
		{label: fmt.Sprintf("Vertex (%.2f, %.2f)", vx, vy), col: colRed, dot: true},
	}

	if disc := b*b - 4*a*c; disc >= 0 {
		sq := math.Sqrt(disc)
		ch.marker((-b+sq)/(2*a), 0, colGreen, 8)
		ch.marker((-b-sq)/(2*a), 0, colGreen, 8)
		entries = append(entries, legendEntry{label: "Roots (x-intercepts)", col: colGreen, dot: true})
	}
	ch.legend(entries)

	return r.save(ch.dc, resolveName(filename, QuadraticFilename(a, b, c)))
}

// Linear plots y = mx + c over x ∈ [-10, 10] with the y-intercept and, when
// m is non-zero, the x-intercept marked.
func (r *Renderer) Linear(m, c float64, filename string) (string, error) {
	if err := checkFinite(m, c); err != nil {
		return "", err
	}

	eq := fmt.Sprintf("y = %sx + %s", num(m), num(c))
	ch := newChart(r.fonts, -10, 10, -20, 20)
	ch.frame("Linear Function: "+eq, "x", "y")

	xs, ys := sample(-10, 10, 100, func(x float64) float64 { return m*x + c })
	ch.curve(xs, ys, colBlue, 3, false)

	ch.marker(0, c, colRed, 9)
	entries := []legendEntry{
		{label: eq, col: colBlue},
		{label: fmt.Sprintf("Y-intercept (0, %s)", num(c)), col: colRed, dot: true},
	}
	if m != 0 {
		xi := -c / m
		ch.marker(xi, 0, colGreen, 9)
		entries = append(entries, legendEntry{label: fmt.Sprintf("X-intercept (%.2f, 0)", xi), col: colGreen, dot: true})
	}
	ch.legend(entries)

	return r.save(ch.dc, resolveName(filename, LinearFilename(m, c)))
}

// Point is one (time, value) sample of a motion graph.
type Point struct {
	T float64
	V float64
}

// Labels overrides the title and axis labels of a motion graph. Empty fields
// keep the defaults for the graph kind.
type Labels struct {
	Title  string
	XLabel string
	YLabel string
}

// Motion plots the given samples as a line with markers. An empty point list
// yields empty axes.
func (r *Renderer) Motion(kind MotionKind, points []Point, labels Labels, filename string) (string, error) {
	kind = ParseMotionKind(string(kind))
	for _, p := range points {
		if err := checkFinite(p.T, p.V); err != nil {
			return "", err
		}
	}

	title, xlabel, ylabel := motionDefaults(kind)
	if labels.Title != "" {
		title = labels.Title
	}
	if labels.XLabel != "" {
		xlabel = labels.XLabel
	}
	if labels.YLabel != "" {
		ylabel = labels.YLabel
	}

	tmin, tmax, vmin, vmax := 0.0, 1.0, 0.0, 1.0
	if len(points) > 0 {
		tmin, tmax = math.Min(0, points[0].T), points[0].T
		vmin, vmax = math.Min(0, points[0].V), math.Max(0, points[0].V)
		for _, p := range points[1:] {
			tmin, tmax = math.Min(tmin, p.T), math.Max(tmax, p.T)
			vmin, vmax = math.Min(vmin, p.V), math.Max(vmax, p.V)
		}
	}
	tmin, tmax = padRange(tmin, tmax, 0.05)
	vmin, vmax = padRange(vmin, vmax, 0.08)

	ch := newChart(r.fonts, tmin, tmax, vmin, vmax)
	ch.frame(title, xlabel, ylabel)

	ts := make([]float64, len(points))
	vs := make([]float64, len(points))
	for i, p := range points {
		ts[i], vs[i] = p.T, p.V
	}
	ch.curve(ts, vs, colBlue, 3, true)

	return r.save(ch.dc, resolveName(filename, MotionFilename(kind)))
}

func motionDefaults(kind MotionKind) (title, xlabel, ylabel string) {
	// Casers hold state and are not shared between goroutines.
	title = cases.Title(language.English).String(strings.ReplaceAll(string(kind), "-", " "))
	switch kind {
	case VelocityTime:
		ylabel = "Velocity (m/s)"
	case AccelerationTime:
		ylabel = "Acceleration (m/s²)"
	default:
		ylabel = "Distance (m)"
	}
	return title, "Time (s)", ylabel
}
