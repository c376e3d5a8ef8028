// Package ports defines the interfaces between the conversation engine and
// its collaborators: the tabular content store, the variable store, the
// expression evaluator, the scoring sink, the turn renderer, and session
// snapshot persistence. Adapters implement these; the engine consumes them.
package ports
