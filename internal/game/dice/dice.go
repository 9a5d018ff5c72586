// Package dice models the per-turn dice of a trigammon game.
package dice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// Faces is the number of faces on a die.
const Faces = 6

// Die is one rolled value. Allowed caches whether a legal move exists for the
// value right now; it is recomputed by the rules package and never trusted
// across a state change.
type Die struct {
	Value   int  `json:"value"`
	Used    bool `json:"used"`
	Allowed bool `json:"allowed"`
}

// Set is the ordered dice of one turn: two dice, or four for a double.
// Order only matters for display.
type Set []Die

// Roller produces one uniform value in 1..Faces per call.
type Roller interface {
	Roll() int
}

// Roll throws two dice with r. The larger value is listed first and a double
// expands to four dice of that value.
func Roll(r Roller) Set {
	a, b := r.Roll(), r.Roll()
	if a < b {
		a, b = b, a
	}
	if a == b {
		return Set{{Value: a}, {Value: a}, {Value: a}, {Value: a}}
	}
	return Set{{Value: a}, {Value: b}}
}

// New builds a set from explicit values without normalizing their order.
func New(values ...int) Set {
	s := make(Set, len(values))
	for i, v := range values {
		s[i] = Die{Value: v}
	}
	return s
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	cp := make(Set, len(s))
	copy(cp, s)
	return cp
}

// Values returns every die value in display order.
func (s Set) Values() []int {
	values := make([]int, len(s))
	for i, d := range s {
		values[i] = d.Value
	}
	return values
}

// UnusedValues returns the values of dice not used yet, ascending.
func (s Set) UnusedValues() []int {
	values := make([]int, 0, len(s))
	for _, d := range s {
		if !d.Used {
			values = append(values, d.Value)
		}
	}
	sort.Ints(values)
	return values
}

// HasPlayable reports whether a die is both unused and allowed.
func (s Set) HasPlayable() bool {
	for _, d := range s {
		if !d.Used && d.Allowed {
			return true
		}
	}
	return false
}

// FirstPlayable returns the index of the first unused and allowed die, or -1.
func (s Set) FirstPlayable() int {
	for i, d := range s {
		if !d.Used && d.Allowed {
			return i
		}
	}
	return -1
}

// UnusedIndex returns the index of the first unused die showing value, or -1.
func (s Set) UnusedIndex(value int) int {
	for i, d := range s {
		if !d.Used && d.Value == value {
			return i
		}
	}
	return -1
}

// IsDouble reports whether the set came from a double.
func (s Set) IsDouble() bool {
	return len(s) == 4
}

// AllUsed reports whether every die has been consumed.
func (s Set) AllUsed() bool {
	for _, d := range s {
		if !d.Used {
			return false
		}
	}
	return true
}

// Equal compares two sets die by die.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Swap reverses the display order in place.
func (s Set) Swap() {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (s Set) String() string {
	var sb strings.Builder
	for i, d := range s {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(fmt.Sprintf("%d", d.Value))
		switch {
		case d.Used:
			sb.WriteByte('x')
		case !d.Allowed:
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// CryptoRoller draws values from crypto/rand.
type CryptoRoller struct{}

// Roll returns a uniform value in 1..Faces.
func (CryptoRoller) Roll() int {
	n, err := rand.Int(rand.Reader, big.NewInt(Faces))
	if err != nil {
		panic(fmt.Sprintf("dice: read random source: %v", err))
	}
	return int(n.Int64()) + 1
}

// SequenceRoller replays fixed values in a loop. It is meant for tests and
// scripted demonstrations.
type SequenceRoller struct {
	values []int
	next   int
}

// NewSequenceRoller returns a roller cycling through values. Each value must
// be in 1..Faces.
func NewSequenceRoller(values ...int) (*SequenceRoller, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("sequence roller needs at least one value")
	}
	for _, v := range values {
		if v < 1 || v > Faces {
			return nil, fmt.Errorf("die value %d out of range 1..%d", v, Faces)
		}
	}
	cp := make([]int, len(values))
	copy(cp, values)
	return &SequenceRoller{values: cp}, nil
}

// Roll returns the next value of the sequence.
func (r *SequenceRoller) Roll() int {
	v := r.values[r.next]
	r.next = (r.next + 1) % len(r.values)
	return v
}

// Stats tallies a series of rolls.
type Stats struct {
	Rolls   int
	Doubles int
	Faces   [Faces]int
	Pips    int
}

// FaceCount returns the number of faces tallied in Faces. A double counts
// as two faces, so this is twice the number of rolls.
func (st Stats) FaceCount() int {
	total := 0
	for _, n := range st.Faces {
		total += n
	}
	return total
}

// Statistics rolls n pairs with r and tallies face frequency, doubles and the
// total number of pips the rolls would grant.
func Statistics(r Roller, n int) Stats {
	var st Stats
	for i := 0; i < n; i++ {
		set := Roll(r)
		st.Rolls++
		if set.IsDouble() {
			st.Doubles++
			st.Faces[set[0].Value-1] += 2
		} else {
			st.Faces[set[0].Value-1]++
			st.Faces[set[1].Value-1]++
		}
		for _, d := range set {
			st.Pips += d.Value
		}
	}
	return st
}
