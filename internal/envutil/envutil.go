// Package envutil reads small typed settings out of the process
// environment.
package envutil

import (
	"os"
	"strconv"
)

// Bool returns the parsed boolean value of the named environment variable,
// or def if it is unset or unparsable.
func Bool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
