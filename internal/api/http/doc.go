// Package http provides the REST surface of the relay: the viewer page,
// health and session listings, and metrics.
package http
