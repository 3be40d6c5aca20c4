// Package diagramtools exposes the [diagram.Renderer] drawings as tools the
// model can call.
//
// Five tools are exported via [Tools]:
//   - "plot_quadratic_function" draws y = ax² + bx + c.
//   - "plot_linear_function" draws y = mx + c.
//   - "draw_cell_diagram" draws a labelled plant or animal cell.
//   - "plot_motion_graph" draws a distance/velocity/acceleration-time graph.
//   - "draw_triangle" draws a labelled triangle.
//
// Every tool additionally accepts an optional "filename" overriding the
// default file name.
package diagramtools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/chalkboard/internal/diagram"
	"github.com/MrWong99/chalkboard/internal/tools"
	"github.com/MrWong99/chalkboard/pkg/provider/llm"
)

// Tool names.
const (
	PlotQuadratic = "plot_quadratic_function"
	PlotLinear    = "plot_linear_function"
	DrawCell      = "draw_cell_diagram"
	PlotMotion    = "plot_motion_graph"
	DrawTriangle  = "draw_triangle"
)

type quadraticArgs struct {
	A        *float64 `json:"a"`
	B        *float64 `json:"b"`
	C        *float64 `json:"c"`
	Filename string   `json:"filename"`
}

type linearArgs struct {
	M        *float64 `json:"m"`
	C        *float64 `json:"c"`
	Filename string   `json:"filename"`
}

type cellArgs struct {
	CellType string `json:"cell_type"`
	Filename string `json:"filename"`
}

type motionArgs struct {
	GraphType string      `json:"graph_type"`
	Values    [][]float64 `json:"values"`
	Labels    struct {
		Title  string `json:"title"`
		XLabel string `json:"xlabel"`
		YLabel string `json:"ylabel"`
	} `json:"labels"`
	Filename string `json:"filename"`
}

type triangleArgs struct {
	TriangleType string `json:"triangle_type"`
	Filename     string `json:"filename"`
}

// decode unmarshals the JSON object args into v. Unknown fields are ignored;
// models occasionally send extras.
func decode(args json.RawMessage, v any) error {
	if bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		return fmt.Errorf("%w: arguments must be a JSON object", diagram.ErrInvalidInput)
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", diagram.ErrInvalidInput, err)
	}
	return nil
}

// required returns the values behind ptrs, or an error naming every missing
// one.
func required(names []string, ptrs ...*float64) ([]float64, error) {
	out := make([]float64, len(ptrs))
	var missing []error
	for i, p := range ptrs {
		if p == nil {
			missing = append(missing, fmt.Errorf("%w: missing required number %q", diagram.ErrInvalidInput, names[i]))
			continue
		}
		out[i] = *p
	}
	return out, errors.Join(missing...)
}

func quadraticHandler(r *diagram.Renderer) tools.Handler {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		var a quadraticArgs
		if err := decode(args, &a); err != nil {
			return "", err
		}
		v, err := required([]string{"a", "b", "c"}, a.A, a.B, a.C)
		if err != nil {
			return "", err
		}
		return r.Quadratic(v[0], v[1], v[2], a.Filename)
	}
}

func linearHandler(r *diagram.Renderer) tools.Handler {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		var a linearArgs
		if err := decode(args, &a); err != nil {
			return "", err
		}
		v, err := required([]string{"m", "c"}, a.M, a.C)
		if err != nil {
			return "", err
		}
		return r.Linear(v[0], v[1], a.Filename)
	}
}

func cellHandler(r *diagram.Renderer) tools.Handler {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		var a cellArgs
		if err := decode(args, &a); err != nil {
			return "", err
		}
		return r.Cell(diagram.ParseCellKind(a.CellType), a.Filename)
	}
}

func motionHandler(r *diagram.Renderer) tools.Handler {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		var a motionArgs
		if err := decode(args, &a); err != nil {
			return "", err
		}
		points := make([]diagram.Point, 0, len(a.Values))
		for i, pair := range a.Values {
			if len(pair) != 2 {
				return "", fmt.Errorf("%w: values[%d] must be a [time, value] pair, got %d numbers",
					diagram.ErrInvalidInput, i, len(pair))
			}
			points = append(points, diagram.Point{T: pair[0], V: pair[1]})
		}
		labels := diagram.Labels{Title: a.Labels.Title, XLabel: a.Labels.XLabel, YLabel: a.Labels.YLabel}
		return r.Motion(diagram.ParseMotionKind(a.GraphType), points, labels, a.Filename)
	}
}

func triangleHandler(r *diagram.Renderer) tools.Handler {
	return func(_ context.Context, args json.RawMessage) (string, error) {
		var a triangleArgs
		if err := decode(args, &a); err != nil {
			return "", err
		}
		return r.Triangle(diagram.ParseTriangleKind(a.TriangleType), a.Filename)
	}
}

var filenameParam = map[string]any{
	"type":        "string",
	"description": "Optional file name for the image. Defaults to a name derived from the parameters.",
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

// Tools returns the five diagram tools drawing through r.
func Tools(r *diagram.Renderer) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        PlotQuadratic,
				Description: "Generate a visual graph of a quadratic function (parabola) showing the curve, vertex, and roots. Use this when explaining quadratic equations, parabolas, or solving x² equations.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"a":        number("Coefficient of x² term (e.g., 1 for x², 2 for 2x²). Must not be zero."),
						"b":        number("Coefficient of x term (e.g., -5 for -5x)"),
						"c":        number("Constant term (e.g., 6 for +6)"),
						"filename": filenameParam,
					},
					"required": []string{"a", "b", "c"},
				},
			},
			Handler: quadraticHandler(r),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        PlotLinear,
				Description: "Generate a visual graph of a linear function (straight line) showing the line, slope, and intercepts. Use when explaining linear equations, slopes, or y = mx + c.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"m":        number("Slope of the line (rise/run)"),
						"c":        number("Y-intercept (where line crosses y-axis)"),
						"filename": filenameParam,
					},
					"required": []string{"m", "c"},
				},
			},
			Handler: linearHandler(r),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        DrawCell,
				Description: "Generate a labeled diagram of a plant or animal cell showing all major organelles. Use when explaining cell structure, organelles, or differences between plant and animal cells.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"cell_type": map[string]any{
							"type":        "string",
							"enum":        []string{string(diagram.CellPlant), string(diagram.CellAnimal)},
							"description": "Type of cell to draw: 'plant' or 'animal'",
						},
						"filename": filenameParam,
					},
					"required": []string{"cell_type"},
				},
			},
			Handler: cellHandler(r),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        PlotMotion,
				Description: "Generate physics motion graphs (distance-time, velocity-time, or acceleration-time). Use when explaining motion, speed, velocity, or acceleration concepts.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"graph_type": map[string]any{
							"type": "string",
							"enum": []string{
								string(diagram.DistanceTime),
								string(diagram.VelocityTime),
								string(diagram.AccelerationTime),
							},
							"description": "Type of motion graph",
						},
						"values": map[string]any{
							"type":        "array",
							"description": "Array of [time, value] pairs, e.g., [[0, 0], [2, 10], [4, 20]]",
							"items": map[string]any{
								"type":  "array",
								"items": map[string]any{"type": "number"},
							},
						},
						"labels": map[string]any{
							"type":        "object",
							"description": "Optional overrides for the graph title and axis labels.",
							"properties": map[string]any{
								"title":  map[string]any{"type": "string"},
								"xlabel": map[string]any{"type": "string"},
								"ylabel": map[string]any{"type": "string"},
							},
						},
						"filename": filenameParam,
					},
					"required": []string{"graph_type", "values"},
				},
			},
			Handler: motionHandler(r),
		},
		{
			Definition: llm.ToolDefinition{
				Name:        DrawTriangle,
				Description: "Generate a labeled triangle diagram. Use when explaining geometry, types of triangles, or triangle properties.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"triangle_type": map[string]any{
							"type": "string",
							"enum": []string{
								string(diagram.Equilateral),
								string(diagram.Isosceles),
								string(diagram.Scalene),
								string(diagram.Right),
							},
							"description": "Type of triangle to draw",
						},
						"filename": filenameParam,
					},
					"required": []string{"triangle_type"},
				},
			},
			Handler: triangleHandler(r),
		},
	}
}
