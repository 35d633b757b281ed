package types

import (
	"io"

	"github.com/pactum-chain/pactum/address"
	"golang.org/x/xerrors"
)

// Contract bundles the predicates deployed together under one address.
// Deployment is idempotent: the same set of predicates and salt, in the
// same order, always produces the same contract address.
type Contract struct {
	Predicates []Predicate
	Salt       [32]byte
}

// Fingerprint implements address.Fingerprinter. Predicate addresses are
// written in the contract's own order, per the data model's "ContentAddress
// derived from the ordered predicate addresses and the salt" — reordering
// predicates is a different contract, not an equivalent one.
func (c Contract) Fingerprint(w io.Writer) error {
	for _, p := range c.Predicates {
		addr, err := p.Address()
		if err != nil {
			return xerrors.Errorf("couldn't address predicate: %v", err)
		}

		if _, err := w.Write(addr.Bytes()); err != nil {
			return xerrors.Errorf("couldn't write predicate address: %v", err)
		}
	}

	if _, err := w.Write(c.Salt[:]); err != nil {
		return xerrors.Errorf("couldn't write salt: %v", err)
	}

	return nil
}

// Address computes the contract's content address.
func (c Contract) Address() (address.ContentAddress, error) {
	return address.Compute(c)
}

// SignedContract pairs a contract with a signature over its content
// address. Signature verification itself is out of scope; the node treats
// the signature as an opaque blob it stores and returns unchanged.
type SignedContract struct {
	Contract  Contract
	Signature []byte
}
