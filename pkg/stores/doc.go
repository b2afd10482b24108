// Package stores persists the control plane's documents: resources,
// resource templates, operations and airlock requests. Documents are stored
// as JSON with a few queryable columns lifted out, and every mutation of a
// live document goes through an etag compare-and-swap so concurrent writers
// have exactly one winner.
package stores
