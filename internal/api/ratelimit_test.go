package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimitersPerClient(t *testing.T) {
	limiters := newClientLimiters(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiters.now = func() time.Time { return now }

	assert.True(t, limiters.allow("192.0.2.1"))
	assert.False(t, limiters.allow("192.0.2.1"))
	assert.True(t, limiters.allow("192.0.2.2"))

	now = now.Add(time.Second)
	assert.True(t, limiters.allow("192.0.2.1"))
}

func TestClientLimitersSweepIdle(t *testing.T) {
	limiters := newClientLimiters(1, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiters.now = func() time.Time { return now }

	limiters.allow("192.0.2.1")
	limiters.allow("192.0.2.2")
	assert.Equal(t, 2, limiters.size())

	now = now.Add(limiterIdle)
	limiters.allow("192.0.2.3")
	assert.Equal(t, 1, limiters.size())
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 with port", remoteAddr: "[2001:db8::1]:5555", want: "2001:db8::1"},
		{name: "bare address from RealIP", remoteAddr: "203.0.113.9", want: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			assert.Equal(t, tt.want, clientKey(req))
		})
	}
}
