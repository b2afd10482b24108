// Package policy evaluates airlock requests against Rego policies before
// they are submitted for review.
//
// Built-in policies enforce a non-empty business justification and a bound
// on the number of files in an export request. Additional .rego policies can
// be loaded from a directory; each policy contributes a `deny` set whose
// members become violations. A violation with severity error or critical
// blocks submission, lower severities pass through as warnings.
package policy
