package n64core

import "fmt"

// Assertor is the assertion facility that halts and reports on violation.
// Programmer errors — an unbalanced enable/disable, release of an unowned
// video slot, a DMA alignment-parity mismatch — go through here rather than
// returning a Go error: there is no error-return taxonomy for these at the
// core boundary, they either succeed, block, or trip an assertion.
//
// Tests install a recording Assertor so a violation can be observed without
// killing the test binary; production code uses the default, which panics.
type Assertor interface {
	Assert(cond bool, format string, args ...any)
}

type panicAssertor struct{}

func (panicAssertor) Assert(cond bool, format string, args ...any) {
	if !cond {
		panic("n64core: assertion failed: " + fmt.Sprintf(format, args...))
	}
}

var defaultAssertor Assertor = panicAssertor{}

// SetAssertor overrides the package-wide assertion collaborator. Passing
// nil restores the default panicking behavior.
func SetAssertor(a Assertor) {
	if a == nil {
		a = panicAssertor{}
	}
	defaultAssertor = a
}

func assertf(cond bool, format string, args ...any) {
	defaultAssertor.Assert(cond, format, args...)
}

// RecordingAssertor is an Assertor for tests: it never panics, it just
// remembers every failed assertion so the test can check exactly which
// invariant broke.
type RecordingAssertor struct {
	Failures []string
}

func (r *RecordingAssertor) Assert(cond bool, format string, args ...any) {
	if !cond {
		r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
	}
}

// Failed reports whether any assertion has failed since construction.
func (r *RecordingAssertor) Failed() bool { return len(r.Failures) > 0 }
