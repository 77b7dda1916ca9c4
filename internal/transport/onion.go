package transport

import (
	"encoding/base32"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// OnionSuffix is the special-use TLD of Tor onion services.
	OnionSuffix = ".onion"

	// onionV3Version is the version byte at the end of a v3 address.
	onionV3Version = 0x03
)

// onionV3Pattern matches a v3 address: 56 base32 characters plus ".onion".
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// checksumPrefix is the constant prefix hashed into the v3 checksum.
var checksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (with or without port) is in .onion.
func IsOnionHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), OnionSuffix)
}

// IsValidV3Address validates a v3 onion host name:
//
//	base32(PUBKEY | CHECKSUM | VERSION) + ".onion"
//	CHECKSUM = SHA3-256(".onion checksum" | PUBKEY | VERSION)[:2]
func IsValidV3Address(host string) bool {
	host = strings.ToLower(host)
	if !onionV3Pattern.MatchString(host) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(host, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// CheckTarget rejects start URLs that cannot be crawled with the current
// transport: .onion hosts need a proxied client and must be valid v3
// addresses. Non-onion targets always pass.
func CheckTarget(address string, proxied bool) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("invalid target %q: %w", address, err)
	}
	if !IsOnionHost(u.Host) {
		return nil
	}
	if !IsValidV3Address(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrInvalidOnionAddress, u.Hostname())
	}
	if !proxied {
		return fmt.Errorf("%w: %s", ErrOnionWithoutProxy, u.Hostname())
	}
	return nil
}
