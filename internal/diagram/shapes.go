package diagram

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
)

// board is a drawing surface with a y-up world coordinate system and a title
// band above it.
type board struct {
	dc     *gg.Context
	fonts  *fonts
	scale  float64
	xmin   float64
	ymax   float64
	titleH float64
}

func newBoard(f *fonts, xmin, xmax, ymin, ymax, scale float64) *board {
	const titleH = 100
	w := int(math.Ceil((xmax - xmin) * scale))
	h := int(math.Ceil((ymax-ymin)*scale + titleH))
	dc := gg.NewContext(w, h)
	dc.SetColor(colWhite)
	dc.Clear()
	return &board{dc: dc, fonts: f, scale: scale, xmin: xmin, ymax: ymax, titleH: titleH}
}

func (b *board) pt(x, y float64) (float64, float64) {
	return (x - b.xmin) * b.scale, b.titleH + (b.ymax-y)*b.scale
}

// shape fills the current path with fill (if non-nil), then strokes it.
func (b *board) shape(stroke, fill color.Color, width float64) {
	if fill != nil {
		b.dc.SetColor(fill)
		b.dc.FillPreserve()
	}
	b.dc.SetColor(stroke)
	b.dc.SetLineWidth(width)
	b.dc.Stroke()
}

func (b *board) rect(x, y, w, h float64, stroke, fill color.Color, width float64) {
	px, py := b.pt(x, y+h)
	b.dc.DrawRectangle(px, py, w*b.scale, h*b.scale)
	b.shape(stroke, fill, width)
}

func (b *board) circle(x, y, r float64, stroke, fill color.Color, width float64) {
	px, py := b.pt(x, y)
	b.dc.DrawCircle(px, py, r*b.scale)
	b.shape(stroke, fill, width)
}

// ellipse takes full width and height, like the box it is inscribed in.
func (b *board) ellipse(x, y, w, h float64, stroke, fill color.Color, width float64) {
	px, py := b.pt(x, y)
	b.dc.DrawEllipse(px, py, w/2*b.scale, h/2*b.scale)
	b.shape(stroke, fill, width)
}

func (b *board) polygon(pts [][2]float64, stroke, fill color.Color, width float64) {
	b.dc.NewSubPath()
	for i, p := range pts {
		px, py := b.pt(p[0], p[1])
		if i == 0 {
			b.dc.MoveTo(px, py)
		} else {
			b.dc.LineTo(px, py)
		}
	}
	b.dc.ClosePath()
	b.shape(stroke, fill, width)
}

func (b *board) dot(x, y, r float64, col color.Color) {
	px, py := b.pt(x, y)
	b.dc.SetColor(col)
	b.dc.DrawCircle(px, py, r)
	b.dc.Fill()
}

// text draws s anchored at (x, y); ax and ay follow gg's anchor convention.
func (b *board) text(s string, x, y float64, style fontStyle, size float64, col color.Color, ax, ay float64) {
	px, py := b.pt(x, y)
	b.dc.SetFontFace(b.fonts.face(style, size))
	b.dc.SetColor(col)
	b.dc.DrawStringAnchored(s, px, py, ax, ay)
}

// vtext draws s rotated a quarter turn counter-clockwise, centred on (x, y).
func (b *board) vtext(s string, x, y float64, size float64, col color.Color) {
	px, py := b.pt(x, y)
	b.dc.Push()
	b.dc.RotateAbout(-math.Pi/2, px, py)
	b.dc.SetFontFace(b.fonts.face(styleRegular, size))
	b.dc.SetColor(col)
	b.dc.DrawStringAnchored(s, px, py, 0.5, 0.5)
	b.dc.Pop()
}

func (b *board) title(s string) {
	b.dc.SetFontFace(b.fonts.face(styleBold, 28))
	b.dc.SetColor(colBlack)
	b.dc.DrawStringAnchored(s, float64(b.dc.Width())/2, b.titleH/2, 0.5, 0.5)
}

// ── cells ─────────────────────────────────────────────────────────────────────

// Cell draws a labelled plant or animal cell. Unknown kinds draw an animal
// cell.
func (r *Renderer) Cell(kind CellKind, filename string) (string, error) {
	kind = ParseCellKind(string(kind))
	b := newBoard(r.fonts, 0, 9, 0, 7, 120)
	if kind == CellPlant {
		drawPlantCell(b)
	} else {
		drawAnimalCell(b)
	}
	return r.save(b.dc, resolveName(filename, CellFilename(kind)))
}

func drawPlantCell(b *board) {
	b.rect(0.5, 0.5, 8, 6, colDarkGreen, alpha(colLightGreen, 0.3), 5)
	b.rect(0.7, 0.7, 7.6, 5.6, colBlue, nil, 2)

	b.rect(1.5, 1.2, 1.5, 4, colCyan, alpha(colLightCyan, 0.5), 2)
	b.vtext("Vacuole", 2.25, 3.2, 16, colBlack)

	b.circle(4.5, 3.5, 0.8, colPurple, colLavender, 2)
	b.text("Nucleus", 4.5, 3.5, styleBold, 16, colBlack, 0.5, 0.5)

	for _, p := range [][2]float64{{2.5, 2}, {6.5, 2}, {2, 4.5}, {7, 4.5}, {3.5, 5.5}, {5.5, 1.5}} {
		b.ellipse(p[0], p[1], 0.6, 0.4, colGreen, colLightGreen, 2)
	}
	b.text("Chloroplasts", 7.3, 4.5, styleItalic, 17, colBlack, 0, 0.5)

	for _, p := range [][2]float64{{5.5, 5.5}, {6.5, 5}} {
		b.ellipse(p[0], p[1], 0.5, 0.3, colRed, colPink, 2)
	}
	b.text("Mitochondria", 6.5, 5.7, styleItalic, 16, colBlack, 0, 0.5)

	b.text("Cell Wall", 4.5, 0.25, styleBold, 19, colDarkGreen, 0.5, 0.5)
	b.title("Plant Cell Structure")
}

func drawAnimalCell(b *board) {
	b.ellipse(4.5, 3.5, 7, 5, colBlue, alpha(colLightYel, 0.6), 4)

	b.circle(4.5, 3.5, 1, colPurple, colLavender, 2)
	b.text("Nucleus", 4.5, 3.5, styleBold, 17, colBlack, 0.5, 0.5)

	for _, p := range [][2]float64{{2.5, 2}, {6.5, 2.5}, {2, 4.5}, {6.8, 4.5}, {3.5, 5.5}, {5.5, 1.8}} {
		b.ellipse(p[0], p[1], 0.5, 0.3, colRed, colPink, 2)
	}
	b.text("Mitochondria", 7.3, 4.5, styleItalic, 17, colBlack, 0, 0.5)

	for _, p := range [][2]float64{{2.2, 3}, {3, 1.8}, {6, 5.2}} {
		b.circle(p[0], p[1], 0.15, colCyan, colLightCyan, 1.5)
	}
	b.text("Small Vacuoles", 2.2, 2.55, styleItalic, 14, colBlack, 0.5, 0.5)

	for _, p := range [][2]float64{{3.2, 4.8}, {5.8, 4.7}, {3.8, 2.3}, {5.2, 2.5}, {4, 5.8}} {
		b.dot(p[0], p[1], 4, colBlack)
	}
	b.text("Ribosomes", 5.8, 5.85, styleItalic, 16, colBlack, 0, 0.5)

	b.text("Cell Membrane", 4.5, 0.75, styleBold, 19, colBlue, 0.5, 0.5)
	b.title("Animal Cell Structure")
}

// ── triangles ─────────────────────────────────────────────────────────────────

type triangleShape struct {
	points [3][2]float64
	sides  [3]float64 // AB, BC, CA
}

var triangleShapes = map[TriangleKind]triangleShape{
	Equilateral: {points: [3][2]float64{{0, 0}, {4, 0}, {2, 3.464}}},
	Right:       {points: [3][2]float64{{0, 0}, {4, 0}, {0, 3}}},
	Isosceles:   {points: [3][2]float64{{0, 0}, {4, 0}, {2, 3}}},
	Scalene:     {points: [3][2]float64{{0, 0}, {5, 0}, {2, 3}}},
}

func init() {
	for k, s := range triangleShapes {
		for i := range 3 {
			p, q := s.points[i], s.points[(i+1)%3]
			s.sides[i] = math.Hypot(q[0]-p[0], q[1]-p[1])
		}
		triangleShapes[k] = s
	}
}

// Triangle draws a labelled triangle of the given kind. An empty kind draws
// an equilateral triangle; other unknown kinds draw a scalene one.
func (r *Renderer) Triangle(kind TriangleKind, filename string) (string, error) {
	kind = ParseTriangleKind(string(kind))
	shape, ok := triangleShapes[kind]
	if !ok {
		return "", fmt.Errorf("%w: no shape for triangle kind %q", ErrInvalidInput, kind)
	}

	b := newBoard(r.fonts, -1, 6, -1, 5, 150)
	pts := shape.points[:]
	b.polygon(pts, colBlue, alpha(colLightBlue, 0.45), 3)

	if kind == Right {
		const s = 0.3
		b.polygon([][2]float64{{0, 0}, {s, 0}, {s, s}, {0, s}}, colBlue, nil, 1.5)
	}

	offsets := [3][2]float64{{-0.3, -0.3}, {0.3, -0.3}, {0, 0.3}}
	for i, name := range []string{"A", "B", "C"} {
		p := shape.points[i]
		b.dot(p[0], p[1], 8, colRed)
		b.text(name, p[0]+offsets[i][0], p[1]+offsets[i][1], styleBold, 26, colBlack, 0.5, 0.5)
	}

	sideOffsets := [3][2]float64{{0, -0.5}, {0.5, 0.3}, {-0.5, 0.3}}
	for i := range 3 {
		p, q := shape.points[i], shape.points[(i+1)%3]
		mx, my := (p[0]+q[0])/2, (p[1]+q[1])/2
		b.text(fmt.Sprintf("%.1f", shape.sides[i]), mx+sideOffsets[i][0], my+sideOffsets[i][1],
			styleItalic, 20, colDarkBlue, 0.5, 0.5)
	}

	b.title(triangleTitle(kind))
	return r.save(b.dc, resolveName(filename, TriangleFilename(kind)))
}

func triangleTitle(kind TriangleKind) string {
	s := string(kind)
	return strings.ToUpper(s[:1]) + s[1:] + " Triangle"
}
