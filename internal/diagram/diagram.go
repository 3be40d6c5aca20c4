// Package diagram renders the tutoring diagrams (function plots, motion
// graphs, cell and triangle drawings) as PNG files and prunes old ones.
//
// All files live in a single directory chosen at construction. File names are
// derived deterministically from the drawing parameters unless the caller
// supplies an override, so identical requests overwrite the same file. The
// directory is shared by every conversation without locking: a collision
// silently replaces the earlier file, and a [Sweeper] may delete a file that
// is still about to be displayed.
//
// A [Renderer] is safe for concurrent use; each call draws into its own
// canvas.
package diagram

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
)

// ErrInvalidInput is wrapped by every error caused by unusable drawing
// parameters (zero leading coefficient, NaN, malformed points, ...).
var ErrInvalidInput = errors.New("diagram: invalid input")

// Renderer draws diagrams into a fixed directory.
type Renderer struct {
	dir   string
	fonts *fonts
}

// NewRenderer returns a Renderer writing into dir. The directory is created
// if it does not exist and is stored as an absolute path, so every returned
// file path is absolute.
func NewRenderer(dir string) (*Renderer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("diagram: resolve dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("diagram: create dir %q: %w", abs, err)
	}
	f, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &Renderer{dir: abs, fonts: f}, nil
}

// Dir returns the absolute output directory.
func (r *Renderer) Dir() string { return r.dir }

func (r *Renderer) save(dc *gg.Context, name string) (string, error) {
	path := filepath.Join(r.dir, name)
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("diagram: save %q: %w", name, err)
	}
	return path, nil
}

// ── fonts ─────────────────────────────────────────────────────────────────────

type fontStyle int

const (
	styleRegular fontStyle = iota
	styleBold
	styleItalic
)

// fonts holds the parsed Go font family. Parsed fonts are immutable; faces
// carry a glyph cache and are created per drawing.
type fonts struct {
	regular, bold, italic *truetype.Font
}

func loadFonts() (*fonts, error) {
	var f fonts
	for _, src := range []struct {
		dst **truetype.Font
		ttf []byte
	}{
		{&f.regular, goregular.TTF},
		{&f.bold, gobold.TTF},
		{&f.italic, goitalic.TTF},
	} {
		parsed, err := truetype.Parse(src.ttf)
		if err != nil {
			return nil, fmt.Errorf("diagram: parse font: %w", err)
		}
		*src.dst = parsed
	}
	return &f, nil
}

func (f *fonts) face(style fontStyle, size float64) font.Face {
	fnt := f.regular
	switch style {
	case styleBold:
		fnt = f.bold
	case styleItalic:
		fnt = f.italic
	}
	return truetype.NewFace(fnt, &truetype.Options{Size: size})
}

// ── input checks ──────────────────────────────────────────────────────────────

func checkFinite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite number %v", ErrInvalidInput, v)
		}
	}
	return nil
}
