package verify

// Trigger decides whether verification can stop early. Both methods are
// evaluated after every successfully verified record; either returning
// true ends the run as triggered.
type Trigger interface {
	OnRecord(elem any) bool
	OnRecordCount(n int) bool
}

type never struct{}

func (never) OnRecord(any) bool      { return false }
func (never) OnRecordCount(int) bool { return false }

// Never returns a trigger that never fires.
func Never() Trigger { return never{} }

type afterCount int

func (afterCount) OnRecord(any) bool          { return false }
func (a afterCount) OnRecordCount(n int) bool { return n >= int(a) }

// AfterCount fires once n records have been verified.
func AfterCount(n int) Trigger { return afterCount(n) }

type onMatch struct{ pred Predicate }

func (o onMatch) OnRecord(elem any) bool { return o.pred(elem) }
func (onMatch) OnRecordCount(int) bool   { return false }

// OnMatch fires on the first record matching pred.
func OnMatch(pred Predicate) Trigger { return onMatch{pred: pred} }

type anyOf []Trigger

func (a anyOf) OnRecord(elem any) bool {
	for _, t := range a {
		if t.OnRecord(elem) {
			return true
		}
	}
	return false
}

func (a anyOf) OnRecordCount(n int) bool {
	for _, t := range a {
		if t.OnRecordCount(n) {
			return true
		}
	}
	return false
}

// AnyOf fires when any of triggers fires.
func AnyOf(triggers ...Trigger) Trigger { return anyOf(triggers) }

// TriggerFuncs adapts closures to a Trigger. Nil funcs never fire.
type TriggerFuncs struct {
	RecordFn func(elem any) bool
	CountFn  func(n int) bool
}

// OnRecord implements Trigger.
func (f TriggerFuncs) OnRecord(elem any) bool {
	return f.RecordFn != nil && f.RecordFn(elem)
}

// OnRecordCount implements Trigger.
func (f TriggerFuncs) OnRecordCount(n int) bool {
	return f.CountFn != nil && f.CountFn(n)
}
