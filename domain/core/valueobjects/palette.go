package valueobjects

// DefaultPalette is the cycle of presence colors handed out on join.
var DefaultPalette = Palette{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080",
}

// Palette is an ordered list of colors assigned round-robin by member count.
type Palette []string

// ColorFor returns the color for a room that currently has memberCount members.
func (p Palette) ColorFor(memberCount int) string {
	if len(p) == 0 {
		return DefaultPalette.ColorFor(memberCount)
	}
	if memberCount < 0 {
		memberCount = -memberCount
	}
	return p[memberCount%len(p)]
}
