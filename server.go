package lrthrome

import (
	"context"
	"net"
	"time"
)

// ServerOptions configures a Server: where to listen, the two tick
// intervals, the per-source-IP rate limit (requests per burstWindow),
// and the banner string every peer's Established frame carries.
type ServerOptions struct {
	BindAddress string
	CacheTTL    time.Duration
	PeerTTL     time.Duration
	RateLimit   uint32
	Banner      string
}

// Server binds a listener, wires a Dispatcher around a Cache, a
// RateLimiter, and the caller's SourceRegistry, and drives the accept
// loop plus the two periodic tickers described in spec.md §4.6, all
// feeding the same Dispatcher event channel.
type Server struct {
	opts       ServerOptions
	listener   net.Listener
	dispatcher *Dispatcher
	cache      *Cache
	registry   *SourceRegistry
	limiter    *RateLimiter
}

// NewServer binds opts.BindAddress and wires the dispatcher. It does
// not accept connections or run a tempering cycle yet; call Run for
// that.
func NewServer(opts ServerOptions, registry *SourceRegistry) (*Server, error) {
	ln, err := net.Listen("tcp", opts.BindAddress)
	if err != nil {
		return nil, Wrap(KindIO, err, "failed to bind "+opts.BindAddress)
	}

	cache := NewCache()
	limiter := NewRateLimiter(ratePerSecond(opts.RateLimit))
	dispatcher := NewDispatcher(DispatcherOptions{
		CacheTTL:  opts.CacheTTL,
		PeerTTL:   opts.PeerTTL,
		RateLimit: opts.RateLimit,
		Banner:    opts.Banner,
	}, cache, registry, limiter)

	return &Server{
		opts:       opts,
		listener:   ln,
		dispatcher: dispatcher,
		cache:      cache,
		registry:   registry,
		limiter:    limiter,
	}, nil
}

// ratePerSecond converts the config's "requests per burstWindow" rate
// limit into the sustained rate golang.org/x/time/rate's token bucket
// wants, per spec.md §4.4's GCRA with a 5-second burst window.
func ratePerSecond(rateLimit uint32) float64 {
	return float64(rateLimit) / burstWindow.Seconds()
}

// Run performs the synchronous first tempering required by spec.md
// §6.5, then runs the accept loop and the two ticker goroutines until
// ctx is cancelled, at which point it stops accepting, lets in-flight
// peers notice their channels disappear, and returns nil. A listener
// error other than ctx cancellation is returned.
func (s *Server) Run(ctx context.Context) error {
	Log.WithField("bind", s.opts.BindAddress).Info("running initial temper before accepting connections")
	if err := s.cache.Temper(ctx, s.registry); err != nil {
		Log.WithError(err).Warn("initial temper failed, starting from an empty cache")
	}

	defer s.limiter.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.acceptLoop(ctx) }()
	go s.dispatcher.Run(ctx)
	go s.runTicker(ctx, s.opts.CacheTTL, EventCacheTick{})
	go s.runTicker(ctx, s.opts.PeerTTL, EventPeerTick{})

	select {
	case <-ctx.Done():
		s.listener.Close()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return Wrap(KindIO, err, "accept failed")
			}
		}
		addr := conn.RemoteAddr().String()
		select {
		case s.dispatcher.Events() <- EventAccept{Addr: addr, Conn: conn}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

// runTicker posts ev to the dispatcher every interval, measured from
// the completion of the previous post, following spec.md §4.6's "simple
// periodic sleep" timer design. An interval of zero or less disables
// the ticker entirely.
func (s *Server) runTicker(ctx context.Context, interval time.Duration, ev Event) {
	if interval <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		select {
		case s.dispatcher.Events() <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Addr returns the listener's bound address, useful for tests that bind
// to ":0" and need the assigned port.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }
