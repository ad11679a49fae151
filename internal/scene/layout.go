package scene

import "sort"

// LiveLayoutKey is the key of the layout synthesised from the speaker
// configuration reported by the renderer.
const LiveLayoutKey = "live"

// Speaker is one output channel of a layout.
type Speaker struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Spatialize bool    `json:"spatialize"`

	// Spherical description the position was derived from, kept so the
	// front-end can edit speakers in the renderer's own terms.
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Distance  float64 `json:"distance"`
}

// Layout is a named collection of speakers.
type Layout struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Speakers []Speaker `json:"speakers"`
}

// Clone returns a deep copy of l.
func (l Layout) Clone() Layout {
	out := l
	out.Speakers = append([]Speaker(nil), l.Speakers...)
	return out
}

// SortLayouts orders layouts by display name, then key, in place.
func SortLayouts(layouts []Layout) {
	sort.SliceStable(layouts, func(i, j int) bool {
		if layouts[i].Name != layouts[j].Name {
			return layouts[i].Name < layouts[j].Name
		}
		return layouts[i].Key < layouts[j].Key
	})
}
