package verify

import "fmt"

// Quantifier decides whether a number of matching elements is acceptable.
// ValidWhile is checked after every element and lets a verification fail
// early; ValidAfter is checked once all elements have been seen.
type Quantifier interface {
	Name() string
	ValidWhile(matches, total int) bool
	ValidAfter(matches, total int) bool
}

type quantifier struct {
	name  string
	while func(matches, total int) bool
	after func(matches, total int) bool
}

func (q quantifier) Name() string                       { return q.name }
func (q quantifier) ValidWhile(matches, total int) bool { return q.while(matches, total) }
func (q quantifier) ValidAfter(matches, total int) bool { return q.after(matches, total) }

// Exactly accepts exactly n matches.
func Exactly(n int) Quantifier {
	return quantifier{
		name:  fmt.Sprintf("exactly %d", n),
		while: func(m, _ int) bool { return m <= n },
		after: func(m, _ int) bool { return m == n },
	}
}

// AtLeast accepts n or more matches.
func AtLeast(n int) Quantifier {
	return quantifier{
		name:  fmt.Sprintf("at least %d", n),
		while: func(int, int) bool { return true },
		after: func(m, _ int) bool { return m >= n },
	}
}

// AtMost accepts up to n matches.
func AtMost(n int) Quantifier {
	return quantifier{
		name:  fmt.Sprintf("at most %d", n),
		while: func(m, _ int) bool { return m <= n },
		after: func(m, _ int) bool { return m <= n },
	}
}

// All requires every element to match.
func All() Quantifier {
	return quantifier{
		name:  "all",
		while: func(m, t int) bool { return m == t },
		after: func(m, t int) bool { return m == t },
	}
}

// None requires no element to match.
func None() Quantifier {
	return quantifier{
		name:  "none",
		while: func(m, _ int) bool { return m == 0 },
		after: func(m, _ int) bool { return m == 0 },
	}
}

// Any requires at least one element to match.
func Any() Quantifier {
	return AtLeast(1)
}

// QuantifyVerifier counts elements matching a predicate and checks the
// count against a quantifier.
type QuantifyVerifier struct {
	q       Quantifier
	pred    Predicate
	label   string
	matches int
	total   int
}

// Quantify returns a verifier asserting that q holds for elements matching pred.
// label describes the predicate in failure messages.
func Quantify(q Quantifier, label string, pred Predicate) *QuantifyVerifier {
	return &QuantifyVerifier{q: q, pred: pred, label: label}
}

// Init implements Verifier.
func (v *QuantifyVerifier) Init() error { return nil }

// Receive implements Verifier.
func (v *QuantifyVerifier) Receive(elem any) error {
	v.total++
	if v.pred(elem) {
		v.matches++
	}
	if !v.q.ValidWhile(v.matches, v.total) {
		return Failf("expected %s records matching %s, got %d of %d so far", v.q.Name(), v.label, v.matches, v.total)
	}
	return nil
}

// Finish implements Verifier.
func (v *QuantifyVerifier) Finish() error {
	if !v.q.ValidAfter(v.matches, v.total) {
		return Failf("expected %s records matching %s, got %d of %d", v.q.Name(), v.label, v.matches, v.total)
	}
	return nil
}

var _ Verifier = (*QuantifyVerifier)(nil)
