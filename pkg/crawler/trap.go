package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// TrapMatcher holds the trap-avoidance rules: URL shapes that lead to
// authentication walls, administrative areas, session/tracking explosions,
// binary assets, or server-side format conversions. All predicates are pure.
type TrapMatcher struct {
	override *regexp.Regexp // When set, replaces the built-in rule set
}

// Built-in rule tables. Paths are matched per segment, query parameters by
// exact (lowercased) name or prefix.
var (
	trapPathSegments = map[string]struct{}{
		"login":     {},
		"log-in":    {},
		"signin":    {},
		"sign-in":   {},
		"signup":    {},
		"sign-up":   {},
		"register":  {},
		"logout":    {},
		"account":   {},
		"auth":      {},
		"session":   {},
		"admin":     {},
		"wp-admin":  {},
		"wp-login":  {},
		"cart":      {},
		"checkout":  {},
	}

	trapQueryParams = map[string]struct{}{
		"sessionid":  {},
		"session_id": {},
		"phpsessid":  {},
		"jsessionid": {},
		"sid":        {},
		"fbclid":     {},
		"gclid":      {},
		"replytocom": {},
	}

	trapQueryParamPrefixes = []string{"utm_"}

	// Format-conversion queries: same page rendered again as print/PDF.
	trapConversionParams = map[string][]string{
		"print":  nil, // Any value
		"action": {"print", "pdf"},
		"format": {"pdf", "print"},
		"output": {"pdf", "print"},
		"view":   {"print"},
	}

	binaryAssetExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".ico": {},
		".svg": {}, ".webp": {}, ".tif": {}, ".tiff": {},
		".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {},
		".ogg": {}, ".wav": {}, ".flac": {},
		".zip": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {}, ".rar": {}, ".7z": {},
		".exe": {}, ".msi": {}, ".dmg": {}, ".iso": {}, ".bin": {},
		".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
		".pdf": {}, ".ps": {}, ".eps": {},
		".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
		".css": {}, ".js": {}, ".map": {},
	}
)

// NewTrapMatcher builds the default rule set, or one driven entirely by the
// override regex when it is non-nil (the reject_pattern config knob).
func NewTrapMatcher(override *regexp.Regexp) *TrapMatcher {
	return &TrapMatcher{override: override}
}

// Match reports whether u falls into a trap class, and which one.
// The reason string feeds the rejected-URL log.
func (m *TrapMatcher) Match(u *url.URL) (reason string, matched bool) {
	if m.override != nil {
		if m.override.MatchString(u.String()) {
			return "reject_pattern", true
		}
		return "", false
	}

	if seg, ok := matchPathSegment(u.Path); ok {
		return "trap_path:" + seg, true
	}
	if ext, ok := matchBinaryExtension(u.Path); ok {
		return "binary_asset:" + ext, true
	}
	if param, ok := matchQueryParam(u.Query()); ok {
		return "tracking_param:" + param, true
	}
	if param, ok := matchConversionParam(u.Query()); ok {
		return "format_conversion:" + param, true
	}
	return "", false
}

func matchPathSegment(urlPath string) (string, bool) {
	for _, seg := range strings.Split(strings.ToLower(urlPath), "/") {
		if _, ok := trapPathSegments[seg]; ok {
			return seg, true
		}
	}
	return "", false
}

func matchBinaryExtension(urlPath string) (string, bool) {
	ext := strings.ToLower(path.Ext(urlPath))
	if ext == "" {
		return "", false
	}
	if _, ok := binaryAssetExtensions[ext]; ok {
		return ext, true
	}
	return "", false
}

func matchQueryParam(query url.Values) (string, bool) {
	for key := range query {
		lower := strings.ToLower(key)
		if _, ok := trapQueryParams[lower]; ok {
			return lower, true
		}
		for _, prefix := range trapQueryParamPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return lower, true
			}
		}
	}
	return "", false
}

func matchConversionParam(query url.Values) (string, bool) {
	for key, values := range query {
		lower := strings.ToLower(key)
		allowed, ok := trapConversionParams[lower]
		if !ok {
			continue
		}
		if allowed == nil {
			return lower, true
		}
		for _, v := range values {
			for _, bad := range allowed {
				if strings.EqualFold(v, bad) {
					return lower + "=" + strings.ToLower(v), true
				}
			}
		}
	}
	return "", false
}
