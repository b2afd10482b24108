// Package bus carries the control plane's asynchronous messages: deployment
// requests going out to resource processors, step results and scan verdicts
// coming back, and airlock domain events fanning out to subscribers.
//
// Messages travel in a common envelope carrying a correlation id and, for
// deployment traffic, a session key. All messages sharing a session key are
// delivered in send order; across sessions no ordering is guaranteed.
package bus
