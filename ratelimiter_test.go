package lrthrome

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	r := NewRateLimiter(10)
	defer r.Close()

	ip := net.ParseIP("203.0.113.1")
	for i := 0; i < 5; i++ {
		require.True(t, r.Allow(ip))
	}
}

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	r := NewRateLimiter(1)
	defer r.Close()

	ip := net.ParseIP("203.0.113.2")
	var rejected bool
	for i := 0; i < 20; i++ {
		if !r.Allow(ip) {
			rejected = true
			break
		}
	}
	require.True(t, rejected)
}

func TestRateLimiterTracksSourcesIndependently(t *testing.T) {
	r := NewRateLimiter(1)
	defer r.Close()

	a := net.ParseIP("203.0.113.3")
	b := net.ParseIP("203.0.113.4")

	for i := 0; i < 4; i++ {
		r.Allow(a)
	}
	require.True(t, r.Allow(b))
}
