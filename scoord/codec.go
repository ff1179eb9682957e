package scoord

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedShape = errors.New("scoord: unsupported shape")

// Value is the payload of a SCOORD content item.
type Value struct {
	GraphicType string    `json:"graphic_type"`
	GraphicData []float64 `json:"graphic_data"`
}

// Encode converts a shape into its SCOORD value.
func Encode(shape Shape) (Value, error) {
	switch s := shape.(type) {
	case Point:
		return Value{GraphicType: GraphicPoint, GraphicData: []float64{s.X, s.Y}}, nil
	case Polyline:
		if len(s.Points) == 0 {
			return Value{}, fmt.Errorf("%w: empty polyline", ErrUnsupportedShape)
		}
		return Value{GraphicType: GraphicPolyline, GraphicData: flatten(s.Points)}, nil
	case Rectangle:
		if s.Min.X == s.Max.X || s.Min.Y == s.Max.Y {
			return Value{}, fmt.Errorf("%w: empty rectangle", ErrUnsupportedShape)
		}
		return Value{GraphicType: GraphicPolyline, GraphicData: flatten(s.Corners())}, nil
	case Circle:
		return Value{
			GraphicType: GraphicCircle,
			GraphicData: []float64{s.Center.X, s.Center.Y, s.Center.X + s.Radius, s.Center.Y},
		}, nil
	case Ellipse:
		c := s.Center
		horizontal := []float64{c.X - s.RadiusX, c.Y, c.X + s.RadiusX, c.Y}
		vertical := []float64{c.X, c.Y - s.RadiusY, c.X, c.Y + s.RadiusY}
		// major axis first
		if s.RadiusY > s.RadiusX {
			horizontal, vertical = vertical, horizontal
		}
		return Value{
			GraphicType: GraphicEllipse,
			GraphicData: append(horizontal, vertical...),
		}, nil
	case nil:
		return Value{}, fmt.Errorf("%w: nil", ErrUnsupportedShape)
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedShape, shape)
}

// Decode converts a SCOORD value into a shape.
//
// A closed axis-aligned five-point polyline decodes as a Rectangle with
// Min at the top-left corner, so Encode then Decode returns a Rectangle
// only up to that normalization, and a hand-drawn polyline of that exact
// form comes back as a Rectangle. An ELLIPSE must have one horizontal and
// one vertical axis, in either order.
func Decode(v Value) (Shape, error) {
	if len(v.GraphicData)%2 != 0 {
		return nil, fmt.Errorf("%w: odd graphic data length %d", ErrUnsupportedShape, len(v.GraphicData))
	}
	points := pairs(v.GraphicData)

	switch v.GraphicType {
	case GraphicPoint:
		if len(points) != 1 {
			return nil, fmt.Errorf("%w: POINT with %d points", ErrUnsupportedShape, len(points))
		}
		return points[0], nil
	case GraphicPolyline:
		if len(points) == 0 {
			return nil, fmt.Errorf("%w: empty POLYLINE", ErrUnsupportedShape)
		}
		if isRectangle(points) {
			return Rectangle{Min: points[0], Max: points[2]}, nil
		}
		return Polyline{Points: points}, nil
	case GraphicCircle:
		if len(points) != 2 {
			return nil, fmt.Errorf("%w: CIRCLE with %d points", ErrUnsupportedShape, len(points))
		}
		return Circle{Center: points[0], Radius: distance(points[0], points[1])}, nil
	case GraphicEllipse:
		if len(points) != 4 {
			return nil, fmt.Errorf("%w: ELLIPSE with %d points", ErrUnsupportedShape, len(points))
		}
		return ellipseFromAxes(points)
	}
	return nil, fmt.Errorf("%w: graphic type %q", ErrUnsupportedShape, v.GraphicType)
}

func ellipseFromAxes(p []Point) (Shape, error) {
	center := Point{X: (p[0].X + p[1].X) / 2, Y: (p[0].Y + p[1].Y) / 2}
	first := distance(p[0], p[1]) / 2
	second := distance(p[2], p[3]) / 2

	switch {
	case p[0].Y == p[1].Y && p[2].X == p[3].X:
		return Ellipse{Center: center, RadiusX: first, RadiusY: second}, nil
	case p[0].X == p[1].X && p[2].Y == p[3].Y:
		return Ellipse{Center: center, RadiusX: second, RadiusY: first}, nil
	}
	return nil, fmt.Errorf("%w: ELLIPSE axes not axis aligned", ErrUnsupportedShape)
}

func isRectangle(p []Point) bool {
	return len(p) == 5 && p[0] == p[4] &&
		p[1].X > p[0].X && p[1].Y == p[0].Y &&
		p[2].X == p[1].X && p[2].Y > p[1].Y &&
		p[3].X == p[0].X && p[3].Y == p[2].Y
}

func flatten(points []Point) []float64 {
	ret := make([]float64, 0, len(points)*2)
	for _, p := range points {
		ret = append(ret, p.X, p.Y)
	}
	return ret
}

func pairs(data []float64) []Point {
	ret := make([]Point, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		ret = append(ret, Point{X: data[i], Y: data[i+1]})
	}
	return ret
}

func distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
