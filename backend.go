package qcore

// Options carries the optional collaborators New wires into a Core: a
// logger, an observer and a dataset store. The registry, compiler
// adapter and driver multiplexer are built by New itself; see qcore.go.
type Options struct {
	Logger   interface{}
	Observer interface{}
	// Store, if it implements interfaces.Store, persists every task's
	// signal points and checkpoints to a dataset session (spec.md §9
	// "persisted dataset"). Left nil, a Core keeps only the in-memory
	// per-task Dataset.
	Store interface{}
}
