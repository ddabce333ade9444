// Package urlchain composes the working image URL from the base image and the
// transformation fragments of completed history entries.
package urlchain

import (
	"net/url"
	"strings"
)

// Fragment keys understood by the chain builder
const (
	KeyWidth       = "w"
	KeyHeight      = "h"
	KeyCropMode    = "c"
	KeyRotation    = "rt"
	KeyFlip        = "fl"
	KeyQuality     = "q"
	KeyFormat      = "f"
	KeyProgressive = "pr"
	KeyDefaultImg  = "di"
	KeyEffect      = "e"
)

const (
	// TransformParam is the query parameter carrying the transformation string
	TransformParam = "tr"
	// CacheBustParam is appended to server-confirmed URLs and stripped from bases
	CacheBustParam = "t"
)

// sideChannelKeys never describe a visual transformation
var sideChannelKeys = map[string]bool{
	KeyProgressive: true,
	KeyDefaultImg:  true,
}

// Fragment is one key-value unit of the transformation string. An empty Value
// deletes Key when fragments are merged.
type Fragment struct {
	Key   string
	Value string
}

func (f Fragment) String() string {
	return f.Key + "-" + f.Value
}

// identity is the dedup key. Effects are additive, so each effect name keys separately.
func (f Fragment) identity() string {
	if f.Key == KeyEffect {
		name, _, _ := strings.Cut(f.Value, "-")
		return KeyEffect + "-" + name
	}
	return f.Key
}

// ParseFragment splits "key-value". Fragments without a key are rejected.
func ParseFragment(s string) (Fragment, bool) {
	s = strings.TrimSpace(s)
	key, value, found := strings.Cut(s, "-")
	if !found || key == "" {
		return Fragment{}, false
	}
	return Fragment{Key: key, Value: value}, true
}

// ParseTransform parses a transformation string. Both "," and ":" separate fragments.
func ParseTransform(tr string) []Fragment {
	if tr == "" {
		return nil
	}
	parts := strings.FieldsFunc(tr, func(r rune) bool { return r == ',' || r == ':' })
	out := make([]Fragment, 0, len(parts))
	for _, p := range parts {
		if f, ok := ParseFragment(p); ok {
			out = append(out, f)
		}
	}
	return out
}

// StripSideChannel drops fragments that do not affect the rendered pixels.
func StripSideChannel(frags []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if !sideChannelKeys[f.Key] {
			out = append(out, f)
		}
	}
	return out
}

// Merge flattens fragment lists in order, keeping only the last fragment per
// identity and dropping deletions.
func Merge(lists ...[]Fragment) []Fragment {
	var all []Fragment
	for _, l := range lists {
		all = append(all, l...)
	}

	last := make(map[string]int, len(all))
	for i, f := range all {
		last[f.identity()] = i
	}

	out := make([]Fragment, 0, len(last))
	for i, f := range all {
		if last[f.identity()] != i || f.Value == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Join renders fragments as a transformation string.
func Join(frags []Fragment) string {
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Parsed is a URL split into its base and transformation fragments.
type Parsed struct {
	Base      string
	Fragments []Fragment
}

// Split separates the transformation string and cache-bust parameter from the
// rest of the URL. Unrelated query parameters stay on the base in their original order.
func Split(raw string) (Parsed, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Parsed{}, err
	}

	var kept []string
	var frags []Fragment
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case TransformParam:
			if decoded, err := url.QueryUnescape(value); err == nil {
				value = decoded
			}
			frags = append(frags, ParseTransform(value)...)
		case CacheBustParam:
		default:
			kept = append(kept, part)
		}
	}
	u.RawQuery = strings.Join(kept, "&")
	u.ForceQuery = false
	u.Fragment, u.RawFragment = "", ""

	return Parsed{Base: u.String(), Fragments: frags}, nil
}

// Render appends a transformation string to base.
func Render(base string, frags []Fragment) string {
	if len(frags) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + TransformParam + "=" + Join(frags)
}

// FragmentValue returns the value of key in raw's transformation string.
func FragmentValue(raw, key string) (string, bool) {
	p, err := Split(raw)
	if err != nil {
		return "", false
	}
	merged := Merge(p.Fragments)
	for i := len(merged) - 1; i >= 0; i-- {
		if merged[i].Key == key {
			return merged[i].Value, true
		}
	}
	return "", false
}
