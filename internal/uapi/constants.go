// Package uapi defines the wire-format structs and RPC verb names for
// qcore's external interface (spec.md §6): the JSON shapes a
// cmd/qcorectl client exchanges with a server.Server, and the
// fixed-width encoding used to persist a signal's accumulated sample
// points. Grounded on the teacher's own internal/uapi package, which
// held the ublk kernel-ABI wire structs for the same purpose: bytes
// exchanged across a fixed boundary (there, a uring SQE; here, an RPC
// call and a dataset file).
package uapi

// Verb names the Task Server's CLI/RPC surface (spec.md §4.7), shared
// between cmd/qcorectl's cobra subcommands and any out-of-process RPC
// transport.
type Verb string

const (
	VerbSubmit     Verb = "submit"
	VerbCancel     Verb = "cancel"
	VerbTrack      Verb = "track"
	VerbReport     Verb = "report"
	VerbFetch      Verb = "fetch"
	VerbReview     Verb = "review"
	VerbSnapshot   Verb = "snapshot"
	VerbUpdate     Verb = "update"
	VerbQuery      Verb = "query"
	VerbCreate     Verb = "create"
	VerbDelete     Verb = "delete"
	VerbCheckpoint Verb = "checkpoint"
	VerbLogin      Verb = "login"
	VerbAddUser    Verb = "adduser"
)

// WireFormatVersion is stamped into every marshaled dataset file header
// so a future incompatible change to the fixed-width point encoding can
// be detected instead of silently misread.
const WireFormatVersion uint32 = 1
