package llm

import (
	"net"
	"net/http"
	"time"

	"lexroute/internal/infra/config"
)

// Providers talk to one or two hosts with long, infrequent requests, so the
// pool keeps a handful of warm connections per host.
var defaultPool = config.PoolConfig{
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	MaxConnsPerHost:     20,
	IdleConnTimeout:     2 * time.Minute,
}

const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 2 * time.Minute
)

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// newTransport builds the pooled transport for one provider. ResponseHeaderTimeout
// bounds the wait for the first byte; the gateway's per-call context bounds the rest.
func newTransport(pc config.ProviderConfig) *http.Transport {
	pool := config.PoolConfig{
		MaxIdleConns:        orDefault(pc.Pool.MaxIdleConns, defaultPool.MaxIdleConns),
		MaxIdleConnsPerHost: orDefault(pc.Pool.MaxIdleConnsPerHost, defaultPool.MaxIdleConnsPerHost),
		MaxConnsPerHost:     orDefault(pc.Pool.MaxConnsPerHost, defaultPool.MaxConnsPerHost),
		IdleConnTimeout:     orDefault(pc.Pool.IdleConnTimeout, defaultPool.IdleConnTimeout),
	}
	dialer := &net.Dialer{Timeout: orDefault(pc.ConnTimeout, defaultConnTimeout), KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: orDefault(pc.RespTimeout, defaultRespTimeout),
		MaxIdleConns:          pool.MaxIdleConns,
		MaxIdleConnsPerHost:   pool.MaxIdleConnsPerHost,
		MaxConnsPerHost:       pool.MaxConnsPerHost,
		IdleConnTimeout:       pool.IdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient returns the client a provider adapter sends with. It sets no
// overall timeout.
func NewHTTPClient(pc config.ProviderConfig) *http.Client {
	return &http.Client{Transport: newTransport(pc)}
}
