package batch

// ItemStatus is the processing outcome of one document in a sync unit.
type ItemStatus string

// Item status values.
const (
	StatusIndexed ItemStatus = "indexed"
	StatusDeleted ItemStatus = "deleted"
	StatusSkipped ItemStatus = "skipped"
	StatusError   ItemStatus = "error"
)

// Result is the outcome of processing one document.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewIndexed creates a result for a written document.
func NewIndexed(id string) Result { return Result{id: id, status: StatusIndexed} }

// NewDeleted creates a result for a removed document.
func NewDeleted(id string) Result { return Result{id: id, status: StatusDeleted} }

// NewSkipped creates a result for a document left untouched (not live, out of scope).
func NewSkipped(id string) Result { return Result{id: id, status: StatusSkipped} }

// NewError creates a failed result.
func NewError(id string, err error) Result { return Result{id: id, status: StatusError, err: err} }

// ID returns the document identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary counts outcomes per status.
type Summary struct {
	Indexed int
	Deleted int
	Skipped int
	Failed  int
}

// Summarize aggregates results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.status {
		case StatusIndexed:
			s.Indexed++
		case StatusDeleted:
			s.Deleted++
		case StatusSkipped:
			s.Skipped++
		case StatusError:
			s.Failed++
		}
	}
	return s
}
