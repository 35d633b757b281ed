package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pactum-chain/pactum/address"
)

func TestValue_IsEmpty(t *testing.T) {
	require.True(t, Value(nil).IsEmpty())
	require.True(t, Value{}.IsEmpty())
	require.False(t, Value{1}.IsEmpty())
}

func TestKey_Encode_OrderingMatchesWords(t *testing.T) {
	a := Key{1, 2}
	b := Key{1, 3}

	require.Less(t, string(a.Encode()), string(b.Encode()))
}

func TestPredicate_Address_Deterministic(t *testing.T) {
	p := Predicate{
		StateReadPrograms:  []Program{{0x01, 0x02}},
		ConstraintPrograms: []Program{{0x03}},
	}

	a1, err := p.Address()
	require.NoError(t, err)

	a2, err := p.Address()
	require.NoError(t, err)

	require.Equal(t, a1, a2)

	other := Predicate{
		StateReadPrograms:  []Program{{0x01, 0x02}},
		ConstraintPrograms: []Program{{0x04}},
	}

	a3, err := other.Address()
	require.NoError(t, err)
	require.NotEqual(t, a1, a3)
}

func TestContract_Address_OrderSensitive(t *testing.T) {
	p1 := Predicate{StateReadPrograms: []Program{{0x01}}}
	p2 := Predicate{StateReadPrograms: []Program{{0x02}}}

	c1 := Contract{Predicates: []Predicate{p1, p2}, Salt: [32]byte{1}}
	c2 := Contract{Predicates: []Predicate{p2, p1}, Salt: [32]byte{1}}

	a1, err := c1.Address()
	require.NoError(t, err)

	a2, err := c2.Address()
	require.NoError(t, err)

	require.NotEqual(t, a1, a2)

	c3 := Contract{Predicates: []Predicate{p1, p2}, Salt: [32]byte{1}}

	a3, err := c3.Address()
	require.NoError(t, err)

	require.Equal(t, a1, a3)
}

func TestSolution_Address_OrderSensitive(t *testing.T) {
	ref := PredicateRef{Contract: address.Zero, Predicate: address.Zero}

	part1 := SolutionPart{PredicateToSolve: ref, DecisionVariables: []Value{{1}}}
	part2 := SolutionPart{PredicateToSolve: ref, DecisionVariables: []Value{{2}}}

	s1 := Solution{Data: []SolutionPart{part1, part2}}
	s2 := Solution{Data: []SolutionPart{part2, part1}}

	a1, err := s1.Address()
	require.NoError(t, err)

	a2, err := s2.Address()
	require.NoError(t, err)

	require.NotEqual(t, a1, a2)
}

func TestTimestamp_RoundTrip(t *testing.T) {
	ts := Timestamp{Seconds: 1700000000, Nanos: 123}

	require.Equal(t, ts, TimestampFromTime(ts.Time()))
}
