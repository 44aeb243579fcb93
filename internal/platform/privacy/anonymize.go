// Package privacy reduces client identifiers to values safe to log.
package privacy

import (
	"net"
	"net/netip"
	"strings"
)

// AnonymizeIP truncates a client address to its network prefix: /24 for IPv4
// and /48 for IPv6. addr may carry a port, as http.Request.RemoteAddr does.
// Empty input yields "unknown" and unparseable input "invalid".
func AnonymizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || addr == "unknown" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "invalid"
	}
	ip = ip.Unmap()

	bits := 48
	if ip.Is4() {
		bits = 24
	}
	prefix, err := ip.WithZone("").Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
