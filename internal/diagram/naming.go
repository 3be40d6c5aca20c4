package diagram

import (
	"path/filepath"
	"strconv"
	"strings"
)

// CellKind selects the cell drawing.
type CellKind string

const (
	CellPlant  CellKind = "plant"
	CellAnimal CellKind = "animal"
)

// ParseCellKind normalises s. Unknown values fall back to [CellAnimal].
func ParseCellKind(s string) CellKind {
	if CellKind(normalise(s)) == CellPlant {
		return CellPlant
	}
	return CellAnimal
}

// MotionKind selects the quantity plotted against time.
type MotionKind string

const (
	DistanceTime     MotionKind = "distance-time"
	VelocityTime     MotionKind = "velocity-time"
	AccelerationTime MotionKind = "acceleration-time"
)

// ParseMotionKind normalises s. Unknown values fall back to [DistanceTime].
func ParseMotionKind(s string) MotionKind {
	switch k := MotionKind(normalise(s)); k {
	case DistanceTime, VelocityTime, AccelerationTime:
		return k
	}
	return DistanceTime
}

// TriangleKind selects the triangle drawing.
type TriangleKind string

const (
	Equilateral TriangleKind = "equilateral"
	Isosceles   TriangleKind = "isosceles"
	Scalene     TriangleKind = "scalene"
	Right       TriangleKind = "right"
)

// ParseTriangleKind normalises s. An empty value selects [Equilateral];
// any other unknown value selects [Scalene].
func ParseTriangleKind(s string) TriangleKind {
	switch k := TriangleKind(normalise(s)); k {
	case "":
		return Equilateral
	case Equilateral, Isosceles, Scalene, Right:
		return k
	}
	return Scalene
}

func normalise(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ── default file names ────────────────────────────────────────────────────────

// signMarker replaces "-" in parameter-derived names.
const signMarker = "neg"

// QuadraticFilename returns the default file name for y = ax² + bx + c,
// e.g. "quadratic_1x2+neg5x+6.png" for a=1, b=-5, c=6.
func QuadraticFilename(a, b, c float64) string {
	return markSigns("quadratic_" + num(a) + "x2+" + num(b) + "x+" + num(c) + ".png")
}

// LinearFilename returns the default file name for y = mx + c,
// e.g. "linear_neg2x+3.png" for m=-2, c=3.
func LinearFilename(m, c float64) string {
	return markSigns("linear_" + num(m) + "x+" + num(c) + ".png")
}

// CellFilename returns the default file name for a cell drawing.
func CellFilename(kind CellKind) string {
	return string(kind) + "_cell.png"
}

// MotionFilename returns the default file name for a motion graph,
// e.g. "velocity_time_graph.png".
func MotionFilename(kind MotionKind) string {
	return strings.ReplaceAll(string(kind), "-", "_") + "_graph.png"
}

// TriangleFilename returns the default file name for a triangle drawing.
func TriangleFilename(kind TriangleKind) string {
	return "triangle_" + string(kind) + ".png"
}

// resolveName returns override reduced to a bare .png file name, or def when
// override is empty or names no file.
func resolveName(override, def string) string {
	name := filepath.Base(strings.TrimSpace(override))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return def
	}
	if !strings.EqualFold(filepath.Ext(name), ".png") {
		name += ".png"
	}
	return name
}

func markSigns(s string) string {
	return strings.ReplaceAll(s, "-", signMarker)
}

// num formats v in its shortest round-trip form: 1, -5, 2.5.
func num(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
