// Package scopetimer prints how long a scope took, mirroring ScopeTimer's
// ctor/dtor pairing as a deferred closure since Go has no destructors.
package scopetimer

import (
	"time"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// Start begins timing name and returns a function that prints the elapsed
// duration when called; callers are expected to `defer scopetimer.Start(ro, "x")()`.
func Start(ro hostapi.ReturnObject, name string) func() {
	begin := time.Now()
	return func() {
		ro.Printf("%s duration: %dms\n", name, time.Since(begin).Milliseconds())
	}
}
