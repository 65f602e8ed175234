package pool

import "pixelbatch/internal/convert"

// message kinds exchanged between worker instances and the dispatcher.
// The dispatcher is the only consumer, so handling stays single-threaded.
type msgKind int

const (
	msgSuccess msgKind = iota
	msgFailure
	msgProgress
	msgCancel
)

type message struct {
	kind    msgKind
	worker  *workerInstance // nil for msgCancel
	task    *workerTask
	result  *convert.Result // msgSuccess
	err     error           // msgFailure
	percent int             // msgProgress
	stage   string          // msgProgress
}

type taskOutcome struct {
	result *convert.Result
	err    error
}
