// Package api exposes the REST surface of the collaboration hub. It wires
// authentication, rate limiting and request tracing around the hub service
// and maps service errors onto a uniform JSON error envelope.
package api
