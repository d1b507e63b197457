package lrthrome

import (
	"context"
	"net"
	"time"
)

// peerEntry is the dispatcher's private bookkeeping for one connected
// peer: the Peer itself (for Enqueue/Shutdown), the remote IP the rate
// limiter is keyed on (the socket's address, not anything from the
// wire protocol), and the monotonically updated last_request instant
// PeerTick sweeps against. Exclusively touched by the dispatcher
// goroutine, per spec.md §3's ownership rule, so it carries no locking
// of its own.
type peerEntry struct {
	peer        *Peer
	remoteIP    net.IP
	lastRequest time.Time
}

// remoteHost extracts the IP portion of an accepted connection's
// address (as produced by net.Conn.RemoteAddr().String()) for use as
// the rate limiter's key. Per spec.md §3/§4.4, the limiter is keyed by
// the connecting peer's source IP, never by the IP inside a Request
// frame's payload — that field names the address being looked up, not
// the client asking about it.
func remoteHost(addr string) net.IP {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return net.ParseIP(host)
}

// DispatcherOptions carries the handful of config-derived values the
// dispatcher needs to answer an Established handshake and to run its
// two ticks.
type DispatcherOptions struct {
	CacheTTL  time.Duration
	PeerTTL   time.Duration
	RateLimit uint32
	Banner    string
}

// Dispatcher is the single logical actor described in spec.md §4.6: it
// exclusively owns the peer registry, the cache's write handle, the
// rate limiter, and the source registry, and serializes every Accept,
// PeerFrame, PeerDisconnected, CacheTick, and PeerTick through one
// channel. Grounded on routedns's Pipeline.start() "for req := range
// c.requests" single-goroutine-owns-all-mutable-state idiom
// (pipeline.go), scaled from Pipeline's one request variant to
// the five-variant Event sum type (spec.md §3's four Message variants
// plus Accept).
type Dispatcher struct {
	opts     DispatcherOptions
	cache    *Cache
	registry *SourceRegistry
	limiter  *RateLimiter

	events chan Event
	peers  map[string]*peerEntry
}

// NewDispatcher wires a Dispatcher around an already-constructed Cache,
// SourceRegistry, and RateLimiter. The caller is responsible for running
// one synchronous Temper before peers are accepted, per spec.md §6.5.
func NewDispatcher(opts DispatcherOptions, cache *Cache, registry *SourceRegistry, limiter *RateLimiter) *Dispatcher {
	return &Dispatcher{
		opts:     opts,
		cache:    cache,
		registry: registry,
		limiter:  limiter,
		events:   make(chan Event, 64),
		peers:    make(map[string]*peerEntry),
	}
}

// Events returns the channel the accept loop and the two ticker
// goroutines post into. It is exported so Server can feed it without
// exposing any other Dispatcher internals.
func (d *Dispatcher) Events() chan<- Event { return d.events }

// Run processes events until ctx is cancelled (the interrupt signal),
// at which point it returns; peer goroutines notice their channels
// going away as the process tears down around them, per spec.md §4.6's
// Interrupt handling.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case EventAccept:
		d.handleAccept(e)
	case EventPeerFrame:
		d.handlePeerFrame(e)
	case EventPeerDisconnected:
		if _, ok := d.peers[e.Addr]; ok {
			peersConnected.Add(-1)
			delete(d.peers, e.Addr)
		}
	case EventCacheTick:
		if err := d.cache.Temper(ctx, d.registry); err != nil {
			temperFailuresTotal.Add(1)
			Log.WithError(err).Warn("tempering failed, previous tree retained")
		}
	case EventPeerTick:
		d.handlePeerTick()
	}
}

func (d *Dispatcher) handleAccept(e EventAccept) {
	peer := NewPeer(e.Addr, e.Conn, d.events)
	d.peers[e.Addr] = &peerEntry{peer: peer, remoteIP: remoteHost(e.Addr), lastRequest: time.Now()}
	peersConnected.Add(1)

	established := Established{
		RateLimit: d.opts.RateLimit,
		TreeSize:  uint32(d.cache.Len()),
		CacheTTL:  uint32(d.opts.CacheTTL.Seconds()),
		PeerTTL:   uint32(d.opts.PeerTTL.Seconds()),
		Banner:    d.opts.Banner,
	}
	peer.Enqueue(established.Encode(nil))

	go peer.Run()
}

func (d *Dispatcher) handlePeerFrame(e EventPeerFrame) {
	entry, ok := d.peers[e.Addr]
	if !ok {
		return // peer already disconnected; nothing to reply to
	}

	msg, _, err := Decode(e.Data)
	if err != nil {
		resp := NewResponseError(KindOf(err), err.Error())
		entry.peer.Enqueue(resp.Encode(nil))
		entry.peer.Shutdown()
		return
	}

	switch m := msg.(type) {
	case Established:
		// server-originated; unreachable from a client, ignore.
	case Identify:
		// reserved for future auth; accepted and discarded, per
		// spec.md §9's open question on repeated Identify frames.
	case Request:
		d.handleRequest(entry, m)
	default:
		// a response variant looped back from a client; ignore.
	}
}

func (d *Dispatcher) handleRequest(entry *peerEntry, req Request) {
	if !d.limiter.Allow(entry.remoteIP) {
		ratelimitedTotal.Add(1)
		resp := NewResponseError(KindRatelimited, ErrRatelimited.Error())
		entry.peer.Enqueue(resp.Encode(nil))
		entry.peer.Shutdown()
		return
	}

	entry.lastRequest = time.Now()
	requestsTotal.Add(1)

	prefix, length, ok := d.cache.LongestMatch(req.IP)
	var resp Message
	if ok {
		resp = ResponseOkFound{IP: req.IP, Prefix: prefix, MaskLen: uint32(length)}
	} else {
		resp = ResponseOkNotFound{IP: req.IP}
	}
	entry.peer.Enqueue(resp.Encode(nil))
}

func (d *Dispatcher) handlePeerTick() {
	cutoff := time.Now().Add(-d.opts.PeerTTL)
	for _, entry := range d.peers {
		if entry.lastRequest.Before(cutoff) {
			entry.peer.Shutdown()
		}
	}
}

// PeerCount reports the number of currently registered peers. Intended
// for tests and diagnostics; the dispatcher itself never needs it.
func (d *Dispatcher) PeerCount() int { return len(d.peers) }
