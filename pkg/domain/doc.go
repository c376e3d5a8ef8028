// Package domain holds the value types shared by the conversation engine and
// its adapters: Lines (the script units), Turns (their materialized,
// displayed instances), Scripts, session Snapshots, and the engine's event
// hooks and sentinel errors.
//
// Types here carry no behavior beyond bookkeeping that must stay consistent
// everywhere (submission and scoring latches, type classification). Anything
// that needs a collaborator (expression evaluation, storage, rendering) lives
// behind the interfaces in pkg/ports.
package domain
