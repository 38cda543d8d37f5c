package verify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFailure_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Failf("bad element %d", 3))
	if !IsFailure(err) {
		t.Error("expected IsFailure for wrapped failure")
	}
	if IsFailure(errors.New("plain")) {
		t.Error("plain error should not be a failure")
	}
	if got := Failf("x").Error(); got != "verification failed: x" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFuncs_NilIsNoop(t *testing.T) {
	var f Funcs
	if err := f.Init(); err != nil {
		t.Errorf("Init: %v", err)
	}
	if err := f.Receive(1); err != nil {
		t.Errorf("Receive: %v", err)
	}
	if err := f.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
}

func TestCollector_ElementsAndCheck(t *testing.T) {
	c := Collect(func(elems []any) error {
		if len(elems) != 2 {
			return Failf("want 2 elements, got %d", len(elems))
		}
		return nil
	})

	_ = c.Init()
	_ = c.Receive("a")
	_ = c.Receive("b")

	if diff := cmp.Diff([]any{"a", "b"}, c.Elements()); diff != "" {
		t.Errorf("Elements mismatch (-want +got):\n%s", diff)
	}
	if err := c.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}

	_ = c.Receive("c")
	if err := c.Finish(); !IsFailure(err) {
		t.Errorf("expected failure after third element, got %v", err)
	}
}

func TestCount(t *testing.T) {
	c := Count(2)
	if err := c.Receive(nil); err != nil {
		t.Fatalf("Receive 1: %v", err)
	}
	if err := c.Finish(); !IsFailure(err) {
		t.Errorf("expected failure with 1 of 2 records, got %v", err)
	}
	if err := c.Receive(nil); err != nil {
		t.Fatalf("Receive 2: %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Errorf("Finish: %v", err)
	}
	if err := c.Receive(nil); !IsFailure(err) {
		t.Errorf("expected early failure on third record, got %v", err)
	}
	if c.Received() != 3 {
		t.Errorf("Received = %d, want 3", c.Received())
	}
}

func isEven(elem any) bool {
	n, ok := elem.(int)
	return ok && n%2 == 0
}

func runQuantify(v *QuantifyVerifier, elems ...int) (receiveErr, finishErr error) {
	for _, e := range elems {
		if err := v.Receive(e); err != nil {
			return err, v.Finish()
		}
	}
	return nil, v.Finish()
}

func TestQuantify(t *testing.T) {
	tests := []struct {
		name        string
		q           Quantifier
		elems       []int
		failReceive bool
		failFinish  bool
	}{
		{"exactly ok", Exactly(2), []int{1, 2, 3, 4}, false, false},
		{"exactly too few", Exactly(2), []int{1, 2, 3}, false, true},
		{"exactly too many fails early", Exactly(1), []int{2, 4, 5}, true, true},
		{"at least ok", AtLeast(2), []int{2, 4, 6}, false, false},
		{"at least too few", AtLeast(2), []int{2, 3}, false, true},
		{"at most ok", AtMost(1), []int{1, 2, 3}, false, false},
		{"at most exceeded", AtMost(1), []int{2, 4}, true, true},
		{"all ok", All(), []int{2, 4}, false, false},
		{"all violated", All(), []int{2, 3}, true, true},
		{"none ok", None(), []int{1, 3}, false, false},
		{"none violated", None(), []int{1, 2}, true, true},
		{"any ok", Any(), []int{1, 2}, false, false},
		{"any violated", Any(), []int{1, 3}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Quantify(tt.q, "even", isEven)
			recvErr, finErr := runQuantify(v, tt.elems...)
			if (recvErr != nil) != tt.failReceive {
				t.Errorf("receive error = %v, want failure %v", recvErr, tt.failReceive)
			}
			if (finErr != nil) != tt.failFinish {
				t.Errorf("finish error = %v, want failure %v", finErr, tt.failFinish)
			}
			if recvErr != nil && !IsFailure(recvErr) {
				t.Errorf("receive error is not a *Failure: %v", recvErr)
			}
		})
	}
}

func TestQuantifier_Names(t *testing.T) {
	if Exactly(3).Name() != "exactly 3" {
		t.Errorf("Exactly name = %q", Exactly(3).Name())
	}
	if Any().Name() != "at least 1" {
		t.Errorf("Any name = %q", Any().Name())
	}
}
