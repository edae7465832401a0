// Package netacl provides IP-range allow-listing for two independent
// policies the teacher repo implements with the same pattern in two
// places (rtmp_server.go's concurrent-connection exemption and
// rtmp_session_utils.go's CanPlay): a comma-separated list of CIDR/IP
// ranges, "*" meaning "match everything", and an empty list meaning
// "the policy does not apply".
package netacl

import (
	"net"
	"strings"

	"github.com/netdata/go.d.plugin/pkg/iprange"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

// List is a parsed set of IP ranges, safe for concurrent read-only use
// after construction.
type List struct {
	matchAll bool
	ranges   []iprange.Range
}

// Parse builds a List from a comma-separated range spec. "*" matches
// every address; an empty spec matches nothing (Allowed always false).
// Ranges that fail to parse are logged and skipped rather than
// rejecting the whole spec, matching the teacher's per-entry
// continue-on-error loop.
func Parse(spec string) *List {
	l := &List{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return l
	}
	if spec == "*" {
		l.matchAll = true
		return l
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := iprange.ParseRange(part)
		if err != nil {
			logger.Error(err)
			continue
		}
		l.ranges = append(l.ranges, r)
	}
	return l
}

// Allowed reports whether ip falls within the list.
func (l *List) Allowed(ip string) bool {
	if l == nil {
		return false
	}
	if l.matchAll {
		return true
	}
	if len(l.ranges) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, r := range l.ranges {
		if r.Contains(parsed) {
			return true
		}
	}
	return false
}
