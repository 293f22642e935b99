package engine

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used for listening and for peers given without a port.
const DefaultPort = 9000

// Peer is a statically configured remote node.
type Peer struct {
	Host string
	Port int
}

// String returns the dialable host:port form.
func (p Peer) String() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ParsePeer parses "host:port", "host", "[v6]:port" or "[v6]".
func ParsePeer(s string) (Peer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Peer{}, errors.New("empty peer address")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		// No port: bare host or bracketed IPv6.
		host = s
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			host = s[1 : len(s)-1]
		}
		if host == "" || strings.ContainsAny(host, "[]") {
			return Peer{}, fmt.Errorf("invalid peer address %q", s)
		}
		return Peer{Host: host, Port: DefaultPort}, nil
	}
	if host == "" {
		return Peer{}, fmt.Errorf("peer %q: missing host", s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Peer{}, fmt.Errorf("peer %q: invalid port %q", s, portStr)
	}
	return Peer{Host: host, Port: port}, nil
}

// ParsePeers parses a comma-separated peer list. Empty elements are skipped
// and duplicates are dropped.
func ParsePeers(list string) ([]Peer, error) {
	var peers []Peer
	seen := make(map[Peer]bool)
	for part := range strings.SplitSeq(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePeer(part)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		peers = append(peers, p)
	}
	return peers, nil
}
