// Color model: named cloak colors mapped to inclusive HSV ranges
package palette

import (
	"fmt"
	"sort"
	"strings"
)

// Bound is an HSV triple on the OpenCV 8-bit scale (H 0-180, S and V 0-255).
type Bound [3]int

// Range is an inclusive lower/upper pair in HSV space
type Range struct {
	Lower Bound
	Upper Bound
}

// Contains reports whether hsv lies inside the range on all three channels.
func (r Range) Contains(hsv Bound) bool {
	for i := 0; i < 3; i++ {
		if hsv[i] < r.Lower[i] || hsv[i] > r.Upper[i] {
			return false
		}
	}
	return true
}

// UnsupportedColorError is returned for names missing from the palette
type UnsupportedColorError struct {
	Name string
}

func (e *UnsupportedColorError) Error() string {
	return fmt.Sprintf("unsupported color %q (supported: %s)", e.Name, strings.Join(Names(), ", "))
}

// Red straddles the hue circle, so it needs one range at each end.
var ranges = map[string][]Range{
	"red": {
		{Lower: Bound{0, 120, 70}, Upper: Bound{10, 255, 255}},
		{Lower: Bound{170, 120, 70}, Upper: Bound{180, 255, 255}},
	},
	"blue": {
		{Lower: Bound{94, 80, 2}, Upper: Bound{126, 255, 255}},
	},
}

// Lookup returns the ordered ranges for a color name.
// The returned slice is a copy and may be modified by the caller.
func Lookup(name string) ([]Range, error) {
	rs, ok := ranges[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnsupportedColorError{Name: name}
	}
	out := make([]Range, len(rs))
	copy(out, rs)
	return out, nil
}

// Names lists the supported color names in sorted order
func Names() []string {
	names := make([]string, 0, len(ranges))
	for name := range ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
