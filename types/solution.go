package types

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
)

// Fingerprint implements address.Fingerprinter for a key/value pair.
func (kv KV) Fingerprint(w io.Writer) error {
	if err := writeLenPrefixed(w, kv.Key.Encode()); err != nil {
		return xerrors.Errorf("couldn't write key: %v", err)
	}

	if err := writeLenPrefixed(w, kv.Value.Encode()); err != nil {
		return xerrors.Errorf("couldn't write value: %v", err)
	}

	return nil
}

// SolutionPart is one predicate's contribution to a Solution: the predicate
// it claims to satisfy, the decision variables it proposes, transient data
// visible only to this predicate's programs, and the state mutations it
// proposes should the predicate be satisfied.
type SolutionPart struct {
	PredicateToSolve  PredicateRef
	DecisionVariables []Value
	TransientData     []KV
	StateMutations    []KV
}

// Fingerprint implements address.Fingerprinter.
func (p SolutionPart) Fingerprint(w io.Writer) error {
	if err := p.PredicateToSolve.Fingerprint(w); err != nil {
		return xerrors.Errorf("couldn't fingerprint predicate ref: %v", err)
	}

	if err := writeUint64(w, uint64(len(p.DecisionVariables))); err != nil {
		return xerrors.Errorf("couldn't write decision variable count: %v", err)
	}

	for _, v := range p.DecisionVariables {
		if err := writeLenPrefixed(w, v.Encode()); err != nil {
			return xerrors.Errorf("couldn't write decision variable: %v", err)
		}
	}

	if err := writeUint64(w, uint64(len(p.TransientData))); err != nil {
		return xerrors.Errorf("couldn't write transient data count: %v", err)
	}

	for _, kv := range p.TransientData {
		if err := kv.Fingerprint(w); err != nil {
			return xerrors.Errorf("couldn't fingerprint transient data: %v", err)
		}
	}

	if err := writeUint64(w, uint64(len(p.StateMutations))); err != nil {
		return xerrors.Errorf("couldn't write state mutation count: %v", err)
	}

	for _, kv := range p.StateMutations {
		if err := kv.Fingerprint(w); err != nil {
			return xerrors.Errorf("couldn't fingerprint state mutation: %v", err)
		}
	}

	return nil
}

// Solution is a client's proposal: an ordered list of solution parts, one
// per predicate it attempts to satisfy.
type Solution struct {
	Data []SolutionPart
}

// Fingerprint implements address.Fingerprinter. Parts are hashed in the
// order the client submitted them; as with Contract's predicates, a
// solution's parts are not reordered, since their order can carry meaning
// across transient data shared between parts of the same solution.
func (s Solution) Fingerprint(w io.Writer) error {
	if err := writeUint64(w, uint64(len(s.Data))); err != nil {
		return xerrors.Errorf("couldn't write part count: %v", err)
	}

	for _, part := range s.Data {
		if err := part.Fingerprint(w); err != nil {
			return xerrors.Errorf("couldn't fingerprint solution part: %v", err)
		}
	}

	return nil
}

// Address computes the solution's content address.
func (s Solution) Address() (address.ContentAddress, error) {
	return address.Compute(s)
}
