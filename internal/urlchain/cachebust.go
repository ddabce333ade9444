package urlchain

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// WithCacheBust sets the cache-bust parameter on raw, replacing any previous
// value and leaving every other query parameter untouched.
func WithCacheBust(raw string, now time.Time) string {
	u, err := url.Parse(raw)
	if err != nil {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + CacheBustParam + "=" + strconv.FormatInt(now.UnixMilli(), 10)
	}

	var kept []string
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		if key, _, _ := strings.Cut(part, "="); key == CacheBustParam {
			continue
		}
		kept = append(kept, part)
	}
	kept = append(kept, CacheBustParam+"="+strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}
