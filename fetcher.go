package lrthrome

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// CIDR is a single IPv4 network a Fetcher contributes to the cache.
type CIDR struct {
	IP     net.IP
	Length int
}

// ParseCIDR parses a "a.b.c.d/n" string into a CIDR, the way routedns's
// loaders parse each line of a blocklist. Lines that aren't valid IPv4
// CIDR notation are the caller's decision to skip or fail on.
func ParseCIDR(s string) (CIDR, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return CIDR{}, Wrap(KindParse, err, "invalid cidr "+s)
	}
	if ip.To4() == nil {
		return CIDR{}, ErrMalformed("cidr " + s + " is not ipv4")
	}
	ones, _ := ipnet.Mask.Size()
	return CIDR{IP: ipnet.IP, Length: ones}, nil
}

// Fetcher is a source of CIDRs the cache folds in during Temper. A
// Fetcher is consulted fresh on every tempering cycle; it decides for
// itself whether it has anything new to offer.
//
// This mirrors the BlocklistLoader contract routedns defines for its
// blocklist DBs (blocklistloader.go), generalized to asking for CIDRs
// instead of domain rules, and to a has-update check so a Fetcher whose
// upstream hasn't changed can say so without re-parsing anything.
type Fetcher interface {
	fmt.Stringer

	// HasUpdate reports whether this source believes it has new data
	// to contribute to the current tempering cycle. A Fetcher that
	// can't tell (no ETag, no Last-Modified) should simply return true
	// and pay the re-fetch cost every cycle, the same call routedns's
	// HTTPLoader makes in the absence of caching headers.
	HasUpdate() bool

	// IterateCIDR returns every CIDR this source currently vouches
	// for. Fetchers that fail transiently should return an error
	// rather than an empty result, so Temper can leave the previous
	// tree untouched instead of mistaking "nothing found" for "source
	// is empty".
	IterateCIDR(ctx context.Context) ([]CIDR, error)
}

// SourceRegistry holds the ordered set of Fetchers a Cache tempers
// from. Order is preserved across Register calls and Temper consults
// sources in that order; a prefix listed by several sources becomes a
// single entry in the rebuilt tree.
type SourceRegistry struct {
	mu      sync.Mutex
	sources []Fetcher
}

// NewSourceRegistry returns an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{}
}

// Register appends a Fetcher to the registry.
func (r *SourceRegistry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, f)
}

// Sources returns a snapshot of the registered Fetchers, in
// registration order.
func (r *SourceRegistry) Sources() []Fetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Fetcher, len(r.sources))
	copy(out, r.sources)
	return out
}
