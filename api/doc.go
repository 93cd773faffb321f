// Package api serves the HTTP surface on gin: the messages/data response
// envelope, error helpers, the example endpoint, the generated OpenAPI
// document, health probes and Prometheus metrics.
package api
