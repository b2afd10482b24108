// Package airlock implements data import/export requests for secure
// workspaces. A request moves through a strict status graph (draft,
// submitted, scanning outcomes, review, approval or rejection) and every
// transition is validated against the graph, snapshotted into the request
// history, and persisted under optimistic concurrency so concurrent
// conflicting transitions have exactly one winner.
//
// The scan processor translates malware-scan verdicts arriving from an
// external scanner into status transitions: a clean verdict moves the
// request toward review, anything else toward blocked.
package airlock
