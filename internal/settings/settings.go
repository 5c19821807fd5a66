// Package settings holds the llc2 process-wide configuration published by
// "llc2 init" and consumed by "llc2 bt". There is a single instance, valid
// from one successful Init until the next Init (successful or not) or
// process exit.
package settings

import (
	"flag"
	"fmt"
	"sync/atomic"
)

// ContextImplementation selects how the Fiber Context Extractor reads a
// fiber's saved registers. The underlying coroutine runtime picks one of
// these at build time; llc2 just needs to be told which.
type ContextImplementation int

const (
	UContext ContextImplementation = iota
	FContext
)

func (c ContextImplementation) String() string {
	if c == FContext {
		return "fcontext"
	}
	return "ucontext"
}

func parseContextImplementation(s string) (ContextImplementation, error) {
	switch s {
	case "ucontext":
		return UContext, nil
	case "fcontext":
		return FContext, nil
	default:
		return 0, fmt.Errorf("unknown context implementation %q (want ucontext or fcontext)", s)
	}
}

const (
	pageSize     = 4096
	minStackSize = 16 * 1024
	maxUint64    = ^uint64(0) // mirrors the C++ check against SIZE_MAX
)

// Settings is the immutable snapshot published by a successful Init.
type Settings struct {
	StackSize   uint64
	ContextImpl ContextImplementation
	WithMagic   bool
	FilterBy    *string // reserved, never consumed by the renderer
	TruncateAt  *string // reserved, never consumed by the renderer
}

// MmapSize is the total number of bytes mapped per coroutine: the stack
// rounded up to a whole number of pages, plus one guard page.
func (s *Settings) MmapSize() uint64 {
	pages := (s.StackSize + pageSize - 1) / pageSize
	return (pages + 1) * pageSize
}

// RealStackSize is the usable stack portion of the mapping: MmapSize minus
// the one guard page.
func (s *Settings) RealStackSize() uint64 {
	return s.MmapSize() - pageSize
}

var current atomic.Pointer[Settings]

// Get returns the active settings, or ok=false if no successful Init has
// happened yet (or a later Init failed and cleared them).
func Get() (*Settings, bool) {
	s := current.Load()
	return s, s != nil
}

// Init parses "llc2 init" arguments and, on success, atomically replaces
// the singleton. On any validation failure the singleton is cleared (set
// to uninitialized) and an error is returned, matching ParseSettings's
// "settings.reset(); ...; only assign on success" behavior.
func Init(args []string) (*Settings, error) {
	current.Store(nil)

	fs := flag.NewFlagSet("llc2 init", flag.ContinueOnError)
	fs.SetOutput(discard{})
	var (
		stackSize  uint64
		ctxImplStr string
		withMagic  bool
		filterBy   string
		truncateAt string
	)
	fs.Uint64Var(&stackSize, "s", 0, "stack size in bytes")
	fs.StringVar(&ctxImplStr, "c", "ucontext", "context implementation: ucontext|fcontext")
	fs.BoolVar(&withMagic, "m", false, "control block carries an integrity magic")
	fs.StringVar(&filterBy, "f", "", "reserved filter, parsed but unused")
	fs.StringVar(&truncateAt, "t", "", "reserved truncation point, parsed but unused")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse init options: %w", err)
	}

	if stackSize == 0 || stackSize == maxUint64 || stackSize < minStackSize {
		return nil, fmt.Errorf("invalid stack size %d (must be >= %d and != 0/SIZE_MAX)", stackSize, minStackSize)
	}
	ctxImpl, err := parseContextImplementation(ctxImplStr)
	if err != nil {
		return nil, err
	}

	parsed := &Settings{
		StackSize:   stackSize,
		ContextImpl: ctxImpl,
		WithMagic:   withMagic,
	}
	if fs.Lookup("f").Value.String() != "" {
		parsed.FilterBy = &filterBy
	}
	if fs.Lookup("t").Value.String() != "" {
		parsed.TruncateAt = &truncateAt
	}

	current.Store(parsed)
	return parsed, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
