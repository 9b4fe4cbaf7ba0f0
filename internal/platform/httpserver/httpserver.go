// Package httpserver builds the process's http.Server with the timeouts the
// mutation API needs: requests are small JSON bodies, so slow readers are
// cut off early rather than holding commit goroutines hostage.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 35 * time.Second // outlives the 30s handler timeout
	idleTimeout       = 90 * time.Second
)

// New wraps handler in a server bound to addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
