package types

import "time"

// Timestamp is a wall-clock moment, seconds and nanoseconds since the Unix
// epoch, matching the wire-level (seconds, nanos) pair the REST boundary
// uses.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// TimestampFromTime converts a time.Time to a Timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time converts the Timestamp back to a time.Time, in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// Block is a sequentially numbered, immutable batch of solutions accepted
// together at the same tick.
type Block struct {
	Number    uint64
	Timestamp Timestamp
	Solutions []Solution
}

// OutcomeKind distinguishes a terminal solution outcome.
type OutcomeKind int

const (
	// OutcomeSuccess means the solution was folded into the named block.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFail means the solution was rejected; Reason explains why.
	OutcomeFail
)

// SolutionOutcome is the terminal record of what became of a solution: which
// block it landed in, or why it failed.
type SolutionOutcome struct {
	Kind        OutcomeKind
	BlockNumber uint64
	Reason      string
	RecordedAt  Timestamp
}
