// Package panicerr converts panics in pooled work into ordinary errors. A
// panicking runner must not take down sibling queue directories processed
// in the same invocation.
package panicerr

import (
	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so a panic inside it is caught and returned as an error.
// If fn both returns an error and panics, the error wins.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}
