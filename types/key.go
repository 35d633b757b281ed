// Package types defines the protocol's data model: keys and values, the
// content-addressed predicate/contract/solution hierarchy, and blocks.
package types

import "encoding/binary"

// Word is the atomic unit a Key or Value is built from.
type Word = uint64

// Key identifies a storage cell within a contract's state. Word sequences
// encode to big-endian bytes so bytewise ordering of the encoded form
// matches numeric ordering of the word sequence, which is what lets a
// backend's cursor scan walk a contract's state in a predictable order.
type Key []Word

// Value is the content of a storage cell. An absent cell is distinct from a
// present cell holding an empty Value: reads of an absent cell return an
// empty Value, and writing an empty Value deletes the cell.
type Value []Word

// IsEmpty reports whether v has no words, the sentinel for "cell absent" or
// "cell deleted".
func (v Value) IsEmpty() bool {
	return len(v) == 0
}

// Encode packs the word sequence into big-endian bytes, 8 bytes per word.
func Encode(words []Word) []byte {
	buf := make([]byte, 8*len(words))

	for i, w := range words {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], w)
	}

	return buf
}

// Encode returns the big-endian byte encoding of the key.
func (k Key) Encode() []byte {
	return Encode([]Word(k))
}

// Encode returns the big-endian byte encoding of the value.
func (v Value) Encode() []byte {
	return Encode([]Word(v))
}

// KV pairs a key with its value, used for transient data and proposed state
// mutations carried by a SolutionPart.
type KV struct {
	Key   Key
	Value Value
}
