// CLAUDE:SUMMARY Input safety helpers: upload path confinement, job id validation, SSRF-checked remote URLs, bounded reads, PDF signature sniffing.
// Package safeio guards the places where untrusted input reaches the file
// system or the network: uploaded blueprints, job ids in URLs and remote
// service endpoints.
package safeio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MaxResponseBody is the default cap for remote response reads (1 MiB).
const MaxResponseBody int64 = 1 << 20

var (
	// ErrPathTraversal is returned when a user-supplied name escapes its base.
	ErrPathTraversal = errors.New("safeio: path traversal detected")
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("safeio: URL targets a private or loopback address")
	// ErrUnsafeScheme is returned for non-HTTP(S) URLs.
	ErrUnsafeScheme = errors.New("safeio: only http and https schemes are allowed")
	// ErrNotPDF is returned when content lacks the %PDF- signature.
	ErrNotPDF = errors.New("safeio: not a PDF document")
)

// SafePath joins base and name, rejecting names that would escape base.
func SafePath(base, name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrPathTraversal
	}
	cleaned := filepath.Join(base, filepath.Clean("/"+name))
	if !strings.HasPrefix(cleaned, filepath.Clean(base)+string(filepath.Separator)) &&
		cleaned != filepath.Clean(base) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// ValidateURL requires http or https and a host that does not resolve to a
// private address. Unresolvable hosts pass; the connection fails later.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("safeio: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("safeio: URL has no host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// ValidateIdentifier accepts ids made of letters, digits, '_', '-' and '.'.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("safeio: identifier must not be empty")
	}
	if len(s) > 128 {
		return fmt.Errorf("safeio: identifier too long (max 128)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("safeio: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r and errors beyond that.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("safeio: body exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// SniffPDF checks that head, the first bytes of a file, carry a PDF header.
// The signature may follow up to 1 KiB of leading junk.
func SniffPDF(head []byte) error {
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privateNets = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7", "169.254.0.0/16"} {
		_, n, _ := net.ParseCIDR(cidr)
		out = append(out, n)
	}
	return out
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
