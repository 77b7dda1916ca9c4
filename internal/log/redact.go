package log

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern finds http(s) URLs embedded in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// secretQueryKeys lists query parameters whose values are masked.
var secretQueryKeys = []string{
	"token", "key", "apikey", "secret", "password", "passwd", "auth", "session", "sig", "signature", "code",
}

// RedactURLs masks credentials in every http(s) URL inside s: the userinfo
// password and the values of secret-looking query parameters. It reports
// whether anything was changed.
func RedactURLs(s string) (string, bool) {
	if !strings.Contains(s, "://") {
		return s, false
	}

	changed := false
	out := urlPattern.ReplaceAllStringFunc(s, func(raw string) string {
		redacted, ok := redactURL(raw)
		if ok {
			changed = true
		}
		return redacted
	})
	return out, changed
}

func redactURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}

	changed := false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		for name := range query {
			if isSecretQueryKey(name) {
				query.Set(name, MaskValue)
				changed = true
			}
		}
		if changed {
			u.RawQuery = query.Encode()
		}
	}

	if !changed {
		return raw, false
	}
	// url.URL escapes the mask; keep it readable in logs.
	s := u.String()
	s = strings.ReplaceAll(s, url.QueryEscape(MaskValue), MaskValue)
	s = strings.ReplaceAll(s, url.PathEscape(MaskValue), MaskValue)
	return s, true
}

func isSecretQueryKey(name string) bool {
	lower := strings.ToLower(name)
	for _, key := range secretQueryKeys {
		if lower == key || strings.HasSuffix(lower, "_"+key) || strings.HasSuffix(lower, "-"+key) {
			return true
		}
	}
	return false
}
