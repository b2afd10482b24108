// Package engine provides the core types and components for the Atrium
// control plane: the resource/template domain model, the operation and
// pipeline-step resolution engine, the templated-property substitution
// engine, and the step dispatcher with bounded optimistic-concurrency
// retries.
//
// # Overview
//
// A client action on a resource (install, upgrade, uninstall, or a custom
// action) flows through three stages:
//
//  1. Resolve - look up the resource template and its declarative pipeline
//     for the action (TemplateResolver)
//  2. Build - expand the pipeline into a concrete, ordered Operation with
//     one OperationStep per resource mutation, each with its resolved
//     target resource (Builder)
//  3. Dispatch - compute the outbound properties for the first step via
//     property substitution, patch secondary targets under optimistic
//     concurrency, and emit exactly one deployment message per step
//     (Dispatcher)
//
// The actual cloud provisioning is performed by an external resource
// processor that consumes the deployment messages; the engine only owns the
// step plan and its bookkeeping.
//
// # Core Domain Types
//
//   - Resource: a deployed or deployable entity (workspace, workspace
//     service, user resource, shared service)
//   - ResourceTemplate: a versioned schema for a resource kind, optionally
//     carrying a per-action pipeline
//   - Operation: the persisted record of one client action and its full
//     step plan
//   - OperationStep: one resource mutation within an operation
//
// All persistence goes through the narrow store interfaces declared in
// interfaces.go; implementations live in pkg/stores.
package engine
