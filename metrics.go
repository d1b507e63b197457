package lrthrome

import "expvar"

// getVarInt returns the *expvar.Int published at "lrthrome.<name>",
// creating it on first use. Grounded on routedns's getVarInt
// (metrics.go), trimmed from its per-listener "routedns.<kind>.<id>.
// <name>" namespacing to a flat "lrthrome.<name>" one: lrthrome has a
// single dispatcher, not one metrics set per listener, so there's no
// id component to carry.
func getVarInt(name string) *expvar.Int {
	fullname := "lrthrome." + name
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// Dispatcher-wide counters, published over expvar the way routedns
// publishes its ListenerMetrics: peersConnected tracks live peer
// count, requestsTotal every well-formed Request handled,
// ratelimitedTotal every Request denied by the rate limiter, and
// temperFailuresTotal every aborted tempering cycle.
var (
	peersConnected      = getVarInt("peers_connected")
	requestsTotal       = getVarInt("requests_total")
	ratelimitedTotal    = getVarInt("requests_ratelimited_total")
	temperFailuresTotal = getVarInt("temper_failures_total")
)
