package verify

import "testing"

func TestNever(t *testing.T) {
	tr := Never()
	if tr.OnRecord("x") || tr.OnRecordCount(1_000_000) {
		t.Error("Never fired")
	}
}

func TestAfterCount(t *testing.T) {
	tr := AfterCount(3)
	if tr.OnRecord("x") {
		t.Error("AfterCount fired on record")
	}
	if tr.OnRecordCount(2) {
		t.Error("AfterCount(3) fired at 2")
	}
	if !tr.OnRecordCount(3) {
		t.Error("AfterCount(3) did not fire at 3")
	}
}

func TestOnMatch(t *testing.T) {
	tr := OnMatch(func(elem any) bool { return elem == "stop" })
	if tr.OnRecord("go") {
		t.Error("OnMatch fired on non-matching record")
	}
	if !tr.OnRecord("stop") {
		t.Error("OnMatch did not fire on matching record")
	}
	if tr.OnRecordCount(10) {
		t.Error("OnMatch fired on count")
	}
}

func TestAnyOf(t *testing.T) {
	tr := AnyOf(AfterCount(5), OnMatch(func(elem any) bool { return elem == "stop" }))
	if tr.OnRecord("go") || tr.OnRecordCount(4) {
		t.Error("AnyOf fired early")
	}
	if !tr.OnRecord("stop") {
		t.Error("AnyOf missed matching record")
	}
	if !tr.OnRecordCount(5) {
		t.Error("AnyOf missed count")
	}
	if AnyOf().OnRecordCount(1) {
		t.Error("empty AnyOf fired")
	}
}

func TestTriggerFuncs(t *testing.T) {
	var empty TriggerFuncs
	if empty.OnRecord(1) || empty.OnRecordCount(1) {
		t.Error("empty TriggerFuncs fired")
	}
	tr := TriggerFuncs{CountFn: func(n int) bool { return n == 2 }}
	if !tr.OnRecordCount(2) {
		t.Error("CountFn not consulted")
	}
}
