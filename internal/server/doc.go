// Package server assembles the HTTP surface: the chi router, the middleware
// chain (request IDs, security headers, request logging, metrics, rate
// limiting, bearer-token auth), and the underlying http.Server.
package server
