package bt

import (
	"testing"

	"gotest.tools/v3/assert"
)

// "-f"/"-s" are documented as single-dash shorthands (see Example); pflag
// only accepts a single dash as a shorthand cluster, so registering these
// as long names would make ShorthandLookup come back empty.
func TestBtRegistersSingleDashShorthands(t *testing.T) {
	cmd := New()
	flags := cmd.Flags()

	full := flags.ShorthandLookup("f")
	assert.Assert(t, full != nil)
	assert.Equal(t, "full", full.Name)

	stack := flags.ShorthandLookup("s")
	assert.Assert(t, stack != nil)
	assert.Equal(t, "stack", stack.Name)
}

func TestBtRejectsMissingPid(t *testing.T) {
	cmd := New()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetArgs([]string{"-f"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "--pid is required")
}
