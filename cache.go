package lrthrome

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/gaissmai/bart"
)

// Cache is a longest-prefix-match structure over IPv4 CIDRs. Reads
// (LongestMatch, Len) go through an atomic.Pointer and never block on a
// writer: every mutation, whether a single Insert or a full Temper,
// builds a new bart.Table and swaps it in, so a reader either sees the
// tree before the change or after it, never a partially populated one.
// This generalizes the hot/cold swap routedns's cache-memory.go does
// with a plain RWMutex to a lock-free pointer swap, per the project's
// longest-prefix cache design.
type Cache struct {
	mu      sync.Mutex // serializes writers (Insert, Temper); readers never take it
	entries map[netip.Prefix]struct{}
	tree    atomic.Pointer[bart.Table[netip.Prefix]]
	size    atomic.Int64
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	c := &Cache{entries: make(map[netip.Prefix]struct{})}
	c.tree.Store(new(bart.Table[netip.Prefix]))
	return c
}

// Len reports the number of distinct prefixes currently in the live
// tree.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// LongestMatch returns the longest prefix in the live tree that covers
// addr, along with its mask length. ok is false if no prefix covers
// addr or addr isn't a valid IPv4 address.
func (c *Cache) LongestMatch(addr net.IP) (prefix net.IP, length int, ok bool) {
	a, valid := toAddr(addr)
	if !valid {
		return nil, 0, false
	}
	pfx, found := c.tree.Load().Lookup(a)
	if !found {
		return nil, 0, false
	}
	return fromAddr(pfx.Addr()), pfx.Bits(), true
}

// Insert adds prefix/length to the cache outside of tempering, used by
// tests exercising the cache in isolation. It rebuilds the whole tree
// under mu and swaps it in using the same copy-on-write discipline
// Temper uses, so concurrent readers never observe a half-built tree.
// Inserting the same (prefix, length) twice is a no-op the second time.
func (c *Cache) Insert(prefix net.IP, length int) error {
	pfx, err := toPrefix(prefix, length)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[pfx]; exists {
		return nil
	}
	c.entries[pfx] = struct{}{}
	c.rebuildLocked()
	return nil
}

func (c *Cache) rebuildLocked() {
	t := new(bart.Table[netip.Prefix])
	for pfx := range c.entries {
		t.Update(pfx, func(_ netip.Prefix, _ bool) netip.Prefix { return pfx })
	}
	c.tree.Store(t)
	c.size.Store(int64(len(c.entries)))
}

// Temper rebuilds the cache from scratch from every registered source,
// in order: a fresh, empty entry set, filled in only by this cycle's
// fetcher output. A source whose HasUpdate returns false contributes
// nothing this round, same as if it had returned zero CIDRs — a CIDR
// that a fetcher stops vouching for (delisted upstream, a shrunk
// remote list) is absent from the rebuilt tree once this cycle
// completes, not retained from a prior cycle. An actual error from
// IterateCIDR aborts the whole refresh before any swap, leaving the
// tree exactly as the previous cycle left it — a Fetcher that returns an
// error never empties a tree that was previously healthy; it's only a
// *source that returns without error but no longer lists a prefix*
// that removes it.
func (c *Cache) Temper(ctx context.Context, registry *SourceRegistry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[netip.Prefix]struct{})

	for _, src := range registry.Sources() {
		if !src.HasUpdate() {
			continue
		}
		cidrs, err := src.IterateCIDR(ctx)
		if err != nil {
			return Wrap(KindHTTPFetch, err, "fetcher "+src.String()+" failed")
		}
		for _, cidr := range cidrs {
			pfx, err := toPrefix(cidr.IP, cidr.Length)
			if err != nil {
				return Wrap(KindParse, err, "fetcher "+src.String()+" produced an invalid prefix")
			}
			next[pfx] = struct{}{}
		}
	}

	c.entries = next
	c.rebuildLocked()
	return nil
}

func toAddr(ip net.IP) (netip.Addr, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte{ip4[0], ip4[1], ip4[2], ip4[3]}), true
}

func fromAddr(a netip.Addr) net.IP {
	b := a.As4()
	return net.IP(b[:])
}

func toPrefix(ip net.IP, length int) (netip.Prefix, error) {
	if length < 0 || length > 32 {
		return netip.Prefix{}, ErrMalformed("mask length out of range")
	}
	a, ok := toAddr(ip)
	if !ok {
		return netip.Prefix{}, ErrMalformed("prefix is not a valid IPv4 address")
	}
	return netip.PrefixFrom(a, length).Masked(), nil
}
