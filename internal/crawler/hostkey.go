package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
)

// HostKey returns the scope key of an address: its authority, case-folded and
// IDNA-encoded, with any explicit port kept as written. Two addresses belong
// to the same crawl iff their host keys are equal.
//
// HostKey is pure. It fails with ErrMalformedAddress when the address does not
// have the scheme://authority form.
func HostKey(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", fmt.Errorf("%w: empty address", ErrMalformedAddress)
	}

	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedAddress, address, err)
	}
	if u.Scheme == "" || u.Opaque != "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or authority", ErrMalformedAddress, address)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %q has an empty host", ErrMalformedAddress, address)
	}

	// cases.Caser is stateful, so a fresh one is used per call.
	ascii, err := idna.Punycode.ToASCII(cases.Fold().String(host))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedAddress, address, err)
	}

	if port := u.Port(); port != "" {
		return net.JoinHostPort(ascii, port), nil
	}
	if strings.Contains(ascii, ":") {
		return "[" + ascii + "]", nil
	}
	return ascii, nil
}

// NormalizeAddress returns a canonical spelling of an address for
// deduplication: the fragment is dropped, scheme and host are lowercased and
// an empty path becomes "/". Addresses that do not parse are returned as-is.
func NormalizeAddress(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return address
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// http://example.com and http://example.com/ are the same page.
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}

	return u.String()
}
