package types

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum/address"
)

// Program is opaque bytecode executed by one of the two VMs. The node never
// interprets its contents; it only hashes and stores it.
type Program []byte

// Fingerprint writes a length-prefixed copy of the program bytes.
func (p Program) Fingerprint(w io.Writer) error {
	return writeLenPrefixed(w, p)
}

// Predicate is a pair of programs: one that reads state into slots, one that
// consumes those slots to decide whether a solution part satisfies it.
type Predicate struct {
	StateReadPrograms []Program
	ConstraintPrograms []Program
}

// Fingerprint implements address.Fingerprinter. Every program is written in
// order, state-read programs before constraint programs.
func (p Predicate) Fingerprint(w io.Writer) error {
	if err := writeUint64(w, uint64(len(p.StateReadPrograms))); err != nil {
		return xerrors.Errorf("couldn't write state-read count: %v", err)
	}

	for _, prog := range p.StateReadPrograms {
		if err := prog.Fingerprint(w); err != nil {
			return xerrors.Errorf("couldn't fingerprint state-read program: %v", err)
		}
	}

	if err := writeUint64(w, uint64(len(p.ConstraintPrograms))); err != nil {
		return xerrors.Errorf("couldn't write constraint count: %v", err)
	}

	for _, prog := range p.ConstraintPrograms {
		if err := prog.Fingerprint(w); err != nil {
			return xerrors.Errorf("couldn't fingerprint constraint program: %v", err)
		}
	}

	return nil
}

// Address computes the predicate's content address.
func (p Predicate) Address() (address.ContentAddress, error) {
	return address.Compute(p)
}

// PredicateRef identifies a predicate within a deployed contract.
type PredicateRef struct {
	Contract  address.ContentAddress
	Predicate address.ContentAddress
}

// Fingerprint implements address.Fingerprinter.
func (r PredicateRef) Fingerprint(w io.Writer) error {
	if _, err := w.Write(r.Contract.Bytes()); err != nil {
		return xerrors.Errorf("couldn't write contract address: %v", err)
	}

	if _, err := w.Write(r.Predicate.Bytes()); err != nil {
		return xerrors.Errorf("couldn't write predicate address: %v", err)
	}

	return nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeLenPrefixed(w io.Writer, data []byte) error {
	if err := writeUint64(w, uint64(len(data))); err != nil {
		return xerrors.Errorf("couldn't write length: %v", err)
	}

	if _, err := w.Write(data); err != nil {
		return xerrors.Errorf("couldn't write data: %v", err)
	}

	return nil
}
