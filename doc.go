/*
Package lrthrome implements a TCP service that answers whether an IPv4
address is covered by any CIDR in a periodically refreshed filter set,
over a compact length-prefixed binary protocol.

Clients open a long-lived connection and issue Request frames; the
server replies with the longest matching prefix, or a not-found
indicator, over the same connection. The filter set is rebuilt
("tempered") on an interval from a registry of Fetchers — pluggable
sources such as HTTP-hosted CIDR lists or MaxMind GeoLite2 databases
filtered by ASN, city, or country id.

The package is organized around six collaborating pieces:

Codec

Codec encodes and decodes the wire protocol described in the project's
specification: a 2-byte header (protocol version, message variant)
followed by a variant-specific body. See Encode and Decode.

Cache

Cache is a longest-prefix-match structure over IPv4 CIDRs, rebuilt
wholesale and swapped in atomically by Temper so concurrent readers
never observe a partially populated tree.

Fetcher

Fetcher is the interface a source of CIDRs implements: HasUpdate and
IterateCIDR. RemoteFetcher and GeoliteFetcher are the two concrete
implementations shipped here.

RateLimiter

RateLimiter enforces a per-source-IP request budget over a rolling
burst window, independent of any particular connection.

Peer and Dispatcher

Peer models one connected client's lifecycle (established, active,
shutting down). Dispatcher is the single actor that owns the peer
registry, the cache's write handle, the rate limiter, and the source
registry, serializing all of the above against a single channel of
incoming events.

	srv, err := lrthrome.NewServer(lrthrome.ServerOptions{
		BindAddress: "0.0.0.0:7505",
		CacheTTL:    5 * time.Minute,
		PeerTTL:     time.Minute,
		RateLimit:   100,
	}, sources)
	if err != nil {
		panic(err)
	}
	panic(srv.Run(context.Background()))
*/
package lrthrome
