package board

var palette = [...]string{
	"#ef4444", "#f97316", "#eab308", "#22c55e",
	"#06b6d4", "#3b82f6", "#8b5cf6", "#ec4899",
}

// ColorFor maps a participant ID onto the fixed eight-entry palette. The
// mapping is a pure function of the ID, so every server instance renders
// the same participant with the same color.
func ColorFor(id string) string {
	var h int32
	for _, c := range id {
		h = (h << 5) - h + int32(c)
	}
	if h < 0 {
		h = -h
	}
	return palette[int(h)%len(palette)]
}
