package btrender

import "strings"

// dashesOfLen returns a string of n dashes, grounded on GetDashesSw's
// substr-of-a-constant trick — here just a direct strings.Repeat, since Go
// doesn't need the static-buffer dance C++ used to avoid an allocation.
func dashesOfLen(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("-", n)
}

// fullWidth pads what out to width terminal columns with dashes, centered
// when center is true (title style) or left-aligned with trailing dashes
// otherwise (section-header style). Mirrors GetFullWidth exactly,
// including its "string too long to pad" escape hatch.
func fullWidth(what string, width int, center bool) string {
	if len(what)+2 > width {
		return what
	}
	numDashes := (width - (len(what) + 2)) / 2
	if center {
		return dashesOfLen(numDashes) + " " + what + " " + dashesOfLen(numDashes)
	}
	return what + " " + dashesOfLen(numDashes*2)
}
