// Package transport sends HTTP requests through residential proxy
// gateways.
//
// HTTPClient keeps one pooled http.Transport for all providers. The
// proxy URL for each request is carried in the request context and read
// by the transport's Proxy hook, so a single client serves every
// provider and session.
package transport
