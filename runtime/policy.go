package runtime

import "fmt"

// ParallelismPolicy decides what happens when an OPEN announces a
// parallelism different from the one already recorded.
type ParallelismPolicy int

const (
	// ParallelismStrict rejects a mismatched announcement with a protocol error.
	ParallelismStrict ParallelismPolicy = iota
	// ParallelismLastWins overwrites the recorded parallelism with every
	// announcement.
	ParallelismLastWins
)

// String returns the config name of the policy.
func (p ParallelismPolicy) String() string {
	switch p {
	case ParallelismStrict:
		return "strict"
	case ParallelismLastWins:
		return "last_wins"
	default:
		return fmt.Sprintf("parallelism_policy(%d)", int(p))
	}
}

// ParseParallelismPolicy parses a config name. Empty selects strict.
func ParseParallelismPolicy(s string) (ParallelismPolicy, error) {
	switch s {
	case "", "strict":
		return ParallelismStrict, nil
	case "last_wins":
		return ParallelismLastWins, nil
	default:
		return 0, fmt.Errorf("unknown parallelism policy %q (want strict or last_wins)", s)
	}
}

// InterruptPolicy decides how a forced channel closure is surfaced to the
// caller. The result state is interrupted either way.
type InterruptPolicy int

const (
	// InterruptFail makes Run return an ErrorInterrupted error.
	InterruptFail InterruptPolicy = iota
	// InterruptInconclusive makes Run return the interrupted result with a
	// nil error.
	InterruptInconclusive
)

// String returns the config name of the policy.
func (p InterruptPolicy) String() string {
	switch p {
	case InterruptFail:
		return "fail"
	case InterruptInconclusive:
		return "inconclusive"
	default:
		return fmt.Sprintf("interrupt_policy(%d)", int(p))
	}
}

// ParseInterruptPolicy parses a config name. Empty selects fail.
func ParseInterruptPolicy(s string) (InterruptPolicy, error) {
	switch s {
	case "", "fail":
		return InterruptFail, nil
	case "inconclusive":
		return InterruptInconclusive, nil
	default:
		return 0, fmt.Errorf("unknown interrupt policy %q (want fail or inconclusive)", s)
	}
}
