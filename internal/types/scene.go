package types

// ElementKind classifies a scene element for layout analysis.
type ElementKind string

// Element kinds recognized by the layout analyzer.
const (
	KindComponent ElementKind = "component"
	KindLine      ElementKind = "line"
	KindLabel     ElementKind = "label"
)

// Point is an absolute coordinate in the rendered scene.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned bounding box.
type BoundingBox struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// SceneElement is one shape in a rendered scene graph.
type SceneElement struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Kind ElementKind `json:"kind"`
	// Box is nil when the element has no resolvable bounding box; such
	// elements are skipped by the overlap check.
	Box     *BoundingBox     `json:"bbox,omitempty"`
	Anchors map[string]Point `json:"anchors,omitempty"`
	// AttachedTo holds the ID of the parent element for label elements.
	// It is an id lookup, not ownership; resolved at analysis time to
	// suppress label/parent overlap false positives.
	AttachedTo string `json:"attached_to,omitempty"`
	// Start and End are set for line elements only.
	Start *Point `json:"start,omitempty"`
	End   *Point `json:"end,omitempty"`
}

// Scene is the full element set produced by one render call.
type Scene struct {
	Elements []SceneElement `json:"elements"`
}
