// Package scoord maps geometric shapes to and from SCOORD content items
// (DICOM Part 3 C.18.6): a graphic type plus a flat list of column/row pairs.
package scoord

const (
	GraphicPoint      = "POINT"
	GraphicMultiPoint = "MULTIPOINT"
	GraphicPolyline   = "POLYLINE"
	GraphicCircle     = "CIRCLE"
	GraphicEllipse    = "ELLIPSE"
)

// Shape is a geometric extent drawn on an image, in image pixel coordinates.
type Shape interface {
	GraphicType() string
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polyline is an open or closed path. A closed path repeats its first point
// at the end.
type Polyline struct {
	Points []Point `json:"points"`
}

// Rectangle is axis aligned. Encoding normalizes Min to the top-left corner.
type Rectangle struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Circle is encoded as its center and one point on the perimeter.
type Circle struct {
	Center Point   `json:"center"`
	Radius float64 `json:"radius"`
}

// Ellipse is axis aligned. It is encoded as its major axis endpoints
// followed by its minor axis endpoints.
type Ellipse struct {
	Center  Point   `json:"center"`
	RadiusX float64 `json:"radius_x"`
	RadiusY float64 `json:"radius_y"`
}

func (Point) GraphicType() string     { return GraphicPoint }
func (Polyline) GraphicType() string  { return GraphicPolyline }
func (Rectangle) GraphicType() string { return GraphicPolyline }
func (Circle) GraphicType() string    { return GraphicCircle }
func (Ellipse) GraphicType() string   { return GraphicEllipse }

// Closed reports whether the path ends where it starts.
func (p Polyline) Closed() bool {
	n := len(p.Points)
	return n > 2 && p.Points[0] == p.Points[n-1]
}

// Corners returns the outline in encoding order, closed.
func (r Rectangle) Corners() []Point {
	minX, maxX := order(r.Min.X, r.Max.X)
	minY, maxY := order(r.Min.Y, r.Max.Y)
	return []Point{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
		{X: minX, Y: minY},
	}
}

func order(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}
