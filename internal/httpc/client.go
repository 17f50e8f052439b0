// Package httpc provides a shared HTTP client with timeouts set, for
// tooling that talks to a running armrec daemon. Use this instead of
// http.DefaultClient, which never times out.
package httpc

import (
	"net"
	"net/http"
	"time"
)

const (
	requestTimeout  = 10 * time.Second
	connectTimeout  = 5 * time.Second
	idleConnTimeout = 90 * time.Second
)

// Client is the shared HTTP client. The daemon lives on the local
// network, so timeouts are short.
var Client = &http.Client{
	Timeout: requestTimeout,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: 5 * time.Second,
	},
}
