package board

// ElementKind identifies the shape of a drawing element.
type ElementKind string

const (
	KindPen       ElementKind = "pen"
	KindEraser    ElementKind = "eraser"
	KindLine      ElementKind = "line"
	KindRectangle ElementKind = "rectangle"
	KindCircle    ElementKind = "circle"
	KindArrow     ElementKind = "arrow"
	KindText      ElementKind = "text"
)

// ValidKind reports whether k is part of the supported shape set.
func ValidKind(k ElementKind) bool {
	switch k {
	case KindPen, KindEraser, KindLine, KindRectangle, KindCircle, KindArrow, KindText:
		return true
	}
	return false
}

// Element is a single drawing primitive. Which geometry fields are set
// depends on the kind: pen/eraser/line carry a flat point list,
// rectangle/arrow carry position plus size, circle carries position plus
// radius, text carries position plus the text itself. The element ID is
// client-generated and globally unique; a committed room never holds two
// elements with the same ID.
type Element struct {
	ID          string      `json:"id"`
	Kind        ElementKind `json:"type"`
	Points      []float64   `json:"points,omitempty"`
	X           *float64    `json:"x,omitempty"`
	Y           *float64    `json:"y,omitempty"`
	Width       *float64    `json:"width,omitempty"`
	Height      *float64    `json:"height,omitempty"`
	Radius      *float64    `json:"radius,omitempty"`
	Text        string      `json:"text,omitempty"`
	Stroke      string      `json:"stroke,omitempty"`
	StrokeWidth float64     `json:"strokeWidth,omitempty"`
	Fill        string      `json:"fill,omitempty"`
	Composite   string      `json:"globalCompositeOperation,omitempty"`
	OwnerID     string      `json:"userId,omitempty"`
	Timestamp   int64       `json:"timestamp,omitempty"`
}

// Cursor is the transient pointer position of a participant. Cursors are
// broadcast live and never written to the snapshot cache.
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is a drawing-session member of a room.
type Participant struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Cursor *Cursor `json:"cursor,omitempty"`

	// SessionID is the opaque connection handle bound to this participant.
	SessionID string `json:"socketId"`
}

// VoiceParticipant is a call member. The voice roster lives only in memory
// for the duration of call membership.
type VoiceParticipant struct {
	ID       string `json:"userId"`
	Name     string `json:"userName"`
	Color    string `json:"userColor"`
	Muted    bool   `json:"-"`
	Speaking bool   `json:"-"`
}

// Viewport is the shared pan/zoom state of a room.
type Viewport struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Scale float64 `json:"scale"`
}
