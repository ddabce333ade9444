package urlchain

import (
	"net/url"
	"strings"
)

// Effect names emitted for remote kinds
const (
	EffectBackgroundRemoval = "bgremove"
	EffectRetouch           = "retouch"
)

// AsyncMarkers identify background-removal-class processing in a URL
var AsyncMarkers = []string{
	"e-bgremove",
	"e-removedotbg",
	"bg-remove",
	"background-removal",
	"remove-bg",
}

// IsAsync reports whether raw carries a marker of asynchronous processing.
// Undecodable input is checked as-is.
func IsAsync(raw string) bool {
	return containsMarker(raw, AsyncMarkers)
}

func containsMarker(raw string, markers []string) bool {
	candidates := []string{strings.ToLower(raw)}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	for _, c := range candidates {
		for _, m := range markers {
			if strings.Contains(c, m) {
				return true
			}
		}
	}
	return false
}
