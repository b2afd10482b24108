// Package api exposes the Atrium control plane over HTTP.
//
// The surface is thin glue over the engine, airlock and store packages:
// resource and template management, operation creation, airlock request
// lifecycle, and the inbound webhooks that stand in for queue consumers
// (deployment step results and malware scan results). Routing is gin,
// request validation is binding tags, errors map engine error classes to
// HTTP statuses.
package api
