package diagram

import (
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"
)

const (
	plotWidth  = 1200
	plotHeight = 900
)

var (
	colBlack      = color.NRGBA{0x00, 0x00, 0x00, 0xff}
	colWhite      = color.NRGBA{0xff, 0xff, 0xff, 0xff}
	colBlue       = color.NRGBA{0x1f, 0x5f, 0xd6, 0xff}
	colRed        = color.NRGBA{0xd6, 0x27, 0x28, 0xff}
	colGreen      = color.NRGBA{0x2c, 0xa0, 0x2c, 0xff}
	colDarkGreen  = color.NRGBA{0x00, 0x64, 0x00, 0xff}
	colLightGreen = color.NRGBA{0x90, 0xee, 0x90, 0xff}
	colPurple     = color.NRGBA{0x80, 0x00, 0x80, 0xff}
	colLavender   = color.NRGBA{0xe6, 0xe6, 0xfa, 0xff}
	colCyan       = color.NRGBA{0x00, 0xbc, 0xd4, 0xff}
	colLightCyan  = color.NRGBA{0xe0, 0xff, 0xff, 0xff}
	colPink       = color.NRGBA{0xff, 0xc0, 0xcb, 0xff}
	colLightYel   = color.NRGBA{0xff, 0xff, 0xe0, 0xff}
	colLightBlue  = color.NRGBA{0xad, 0xd8, 0xe6, 0xff}
	colDarkBlue   = color.NRGBA{0x00, 0x00, 0x8b, 0xff}
)

func alpha(c color.NRGBA, a float64) color.NRGBA {
	c.A = uint8(math.Round(a * 255))
	return c
}

// chart is a cartesian plot area with data-space to pixel mapping.
type chart struct {
	dc    *gg.Context
	fonts *fonts

	left, top, right, bottom float64
	xmin, xmax, ymin, ymax   float64
}

func newChart(f *fonts, xmin, xmax, ymin, ymax float64) *chart {
	dc := gg.NewContext(plotWidth, plotHeight)
	dc.SetColor(colWhite)
	dc.Clear()
	return &chart{
		dc:    dc,
		fonts: f,
		left:  110, top: 90, right: plotWidth - 50, bottom: plotHeight - 100,
		xmin: xmin, xmax: xmax, ymin: ymin, ymax: ymax,
	}
}

func (c *chart) px(x, y float64) (float64, float64) {
	return c.left + (x-c.xmin)/(c.xmax-c.xmin)*(c.right-c.left),
		c.bottom - (y-c.ymin)/(c.ymax-c.ymin)*(c.bottom-c.top)
}

func (c *chart) inside(x, y float64) bool {
	return x >= c.xmin && x <= c.xmax && y >= c.ymin && y <= c.ymax
}

// frame draws grid, zero axes, border, tick labels, axis labels and title.
func (c *chart) frame(title, xlabel, ylabel string) {
	dc := c.dc
	xt, yt := ticks(c.xmin, c.xmax), ticks(c.ymin, c.ymax)

	dc.SetLineWidth(1)
	dc.SetColor(alpha(colBlack, 0.12))
	for _, x := range xt {
		px, _ := c.px(x, 0)
		dc.DrawLine(px, c.top, px, c.bottom)
	}
	for _, y := range yt {
		_, py := c.px(0, y)
		dc.DrawLine(c.left, py, c.right, py)
	}
	dc.Stroke()

	dc.SetColor(colBlack)
	if c.xmin <= 0 && c.xmax >= 0 {
		px, _ := c.px(0, 0)
		dc.DrawLine(px, c.top, px, c.bottom)
	}
	if c.ymin <= 0 && c.ymax >= 0 {
		_, py := c.px(0, 0)
		dc.DrawLine(c.left, py, c.right, py)
	}
	dc.DrawRectangle(c.left, c.top, c.right-c.left, c.bottom-c.top)
	dc.Stroke()

	dc.SetFontFace(c.fonts.face(styleRegular, 14))
	for _, x := range xt {
		px, _ := c.px(x, 0)
		dc.DrawStringAnchored(tickLabel(x), px, c.bottom+10, 0.5, 1)
	}
	for _, y := range yt {
		_, py := c.px(0, y)
		dc.DrawStringAnchored(tickLabel(y), c.left-10, py, 1, 0.5)
	}

	midY := (c.top + c.bottom) / 2
	dc.SetFontFace(c.fonts.face(styleRegular, 18))
	dc.DrawStringAnchored(xlabel, (c.left+c.right)/2, c.bottom+45, 0.5, 1)
	dc.Push()
	dc.RotateAbout(-math.Pi/2, 35, midY)
	dc.DrawStringAnchored(ylabel, 35, midY, 0.5, 0.5)
	dc.Pop()

	dc.SetFontFace(c.fonts.face(styleBold, 22))
	dc.DrawStringAnchored(title, plotWidth/2, c.top/2, 0.5, 0.5)
}

// curve strokes the polyline through (xs[i], ys[i]), clipped to the plot area.
func (c *chart) curve(xs, ys []float64, col color.Color, width float64, withMarkers bool) {
	if len(xs) == 0 {
		return
	}
	dc := c.dc
	dc.Push()
	dc.DrawRectangle(c.left, c.top, c.right-c.left, c.bottom-c.top)
	dc.Clip()

	dc.SetColor(col)
	dc.SetLineWidth(width)
	dc.NewSubPath()
	for i := range xs {
		px, py := c.px(xs[i], ys[i])
		if i == 0 {
			dc.MoveTo(px, py)
		} else {
			dc.LineTo(px, py)
		}
	}
	dc.Stroke()

	if withMarkers {
		for i := range xs {
			px, py := c.px(xs[i], ys[i])
			dc.DrawCircle(px, py, 7)
			dc.Fill()
		}
	}
	dc.ResetClip()
	dc.Pop()
}

// marker draws a filled dot at (x, y) when the point is inside the plot area.
func (c *chart) marker(x, y float64, col color.Color, radius float64) {
	if !c.inside(x, y) {
		return
	}
	px, py := c.px(x, y)
	c.dc.SetColor(col)
	c.dc.DrawCircle(px, py, radius)
	c.dc.Fill()
}

type legendEntry struct {
	label string
	col   color.Color
	dot   bool
}

// legend draws a boxed legend in the top-left corner of the plot area.
func (c *chart) legend(entries []legendEntry) {
	if len(entries) == 0 {
		return
	}
	dc := c.dc
	dc.SetFontFace(c.fonts.face(styleRegular, 15))

	const rowH, pad, swatch = 26.0, 12.0, 36.0
	width := 0.0
	for _, e := range entries {
		w, _ := dc.MeasureString(e.label)
		width = math.Max(width, w)
	}
	x, y := c.left+15, c.top+15
	boxW := pad*3 + swatch + width
	boxH := pad*2 + rowH*float64(len(entries))

	dc.SetColor(alpha(colWhite, 0.9))
	dc.DrawRoundedRectangle(x, y, boxW, boxH, 6)
	dc.FillPreserve()
	dc.SetColor(alpha(colBlack, 0.3))
	dc.SetLineWidth(1)
	dc.Stroke()

	for i, e := range entries {
		cy := y + pad + rowH*float64(i) + rowH/2
		dc.SetColor(e.col)
		if e.dot {
			dc.DrawCircle(x+pad+swatch/2, cy, 7)
			dc.Fill()
		} else {
			dc.SetLineWidth(3)
			dc.DrawLine(x+pad, cy, x+pad+swatch, cy)
			dc.Stroke()
		}
		dc.SetColor(colBlack)
		dc.DrawStringAnchored(e.label, x+pad*2+swatch, cy, 0, 0.5)
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

// sample evaluates f at n evenly spaced points in [lo, hi].
func sample(lo, hi float64, n int, f func(float64) float64) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := range n {
		x := lo + (hi-lo)*float64(i)/float64(n-1)
		xs[i], ys[i] = x, f(x)
	}
	return xs, ys
}

// ticks returns round tick positions covering [lo, hi].
func ticks(lo, hi float64) []float64 {
	step := niceStep((hi - lo) / 8)
	start := math.Ceil(lo/step) * step
	n := int(math.Floor((hi-start)/step + 1e-9))
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, start+float64(i)*step)
	}
	return out
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten.
func niceStep(raw float64) float64 {
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / exp; {
	case f <= 1:
		return exp
	case f <= 2:
		return 2 * exp
	case f <= 5:
		return 5 * exp
	default:
		return 10 * exp
	}
}

func tickLabel(v float64) string {
	v = math.Round(v*1e9) / 1e9
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// padRange widens [lo, hi] by frac on both sides and guarantees a non-zero span.
func padRange(lo, hi, frac float64) (float64, float64) {
	if hi-lo < 1e-9 {
		lo, hi = lo-1, hi+1
	}
	d := (hi - lo) * frac
	return lo - d, hi + d
}
