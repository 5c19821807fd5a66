// Package btrender walks the frames the debugger's unwinder produces once
// a coroutine's registers are installed, picks out the ones worth
// printing, and formats the "FOUND SLEEPING COROUTINE" block. This is
// BacktraceCoroutine translated function-for-function.
package btrender

import (
	"strings"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// Sentinels holds the function-name substrings the scan keys off of.
// Promoted out of untyped constants per the source's own admission that
// sleep-sentinel detection is unreliable in some builds (inlined frames);
// callers that hit that can pass their own strings in Options.
type Sentinels struct {
	Sleep             string
	WrappedCallEntry  string
	TaskContextSuffix string
}

// DefaultSentinels mirrors kUserverSleepMark / kUserverWrappedCallImplMark
// / kTaskContextPointerTypeMark.
func DefaultSentinels() Sentinels {
	return Sentinels{
		Sleep:             "engine::impl::TaskContext::Sleep(",
		WrappedCallEntry:  "utils::impl::WrappedCallImpl<",
		TaskContextSuffix: "engine::impl::TaskContext *",
	}
}

// StringReader reads a std::string by value at address, bypassing debug
// info the way ReadStdString does. Implemented by internal/ptracehost;
// abstracted here so this package stays host-agnostic and testable.
type StringReader interface {
	ReadStdString(address uint64) (string, bool)
}

const noneString = "(none)"

// SpanInfo is the optional request-scoped trace identifier triple read off
// of the sleeping coroutine's TaskContext::parent_span_ chain.
type SpanInfo struct {
	Name    string
	SpanID  string
	TraceID string
}

// Options controls one Render call.
type Options struct {
	Full      bool
	Sentinels Sentinels
	Strings   StringReader
	Width     int
}

// Render captures frame descriptions, scans for the sleep/entry sentinels,
// optionally extracts span info, and writes the formatted block to ro.
// It returns false if this coroutine is not eligible for rendering at all
// (no sleep sentinel found, or the sleep sentinel sits at frame 0).
func Render(stackAddress uint64, thread hostapi.Thread, ro hostapi.ReturnObject, opts Options) bool {
	numFrames := thread.NumFrames()

	descriptions := make([]string, numFrames)
	frames := make([]hostapi.Frame, numFrames)

	hasSleep := false
	wrappedCallFrame := numFrames
	var span *SpanInfo

	for i := 0; i < numFrames; i++ {
		frame := thread.FrameAtIndex(i)
		frames[i] = frame
		desc := frame.Description()
		descriptions[i] = desc

		if strings.Contains(desc, opts.Sentinels.Sleep) {
			if i == 0 {
				// coroutine is mid-transition into sleep, i.e. actually
				// running right now; not a candidate for this path.
				break
			}
			hasSleep = true

			if span == nil {
				span = findSpan(frame, opts.Sentinels.TaskContextSuffix, opts.Strings)
			}
		}

		if strings.Contains(desc, opts.Sentinels.WrappedCallEntry) {
			wrappedCallFrame = i
			break
		}
	}

	if !hasSleep {
		return false
	}

	title := fullWidth("FOUND SLEEPING COROUTINE", opts.Width, true)
	ro.AppendMessage(title)

	printed := ro.Printf("coro stack address: 0x%x", stackAddress)
	ro.Printf("\n%s\n", dashesOfLen(printed))

	if span != nil {
		printed = ro.Printf("Parent span (name, span_id, trace_id): %s | %s | %s",
			span.Name, span.SpanID, span.TraceID)
		ro.Printf("\n%s\n", dashesOfLen(printed))
	}

	var out strings.Builder
	for i := 0; i < wrappedCallFrame; i++ {
		out.WriteString(descriptions[i])
		if opts.Full {
			dumpVariables(frames[i], &out, true, false, opts.Width)
			dumpVariables(frames[i], &out, false, true, opts.Width)
		}
	}
	ro.Printf("%s", out.String())

	return true
}

func findSpan(frame hostapi.Frame, taskContextSuffix string, strs StringReader) *SpanInfo {
	thisVal, ok := frame.FindVariable("this")
	if !ok {
		return nil
	}
	if !strings.HasSuffix(thisVal.DisplayTypeName(), taskContextSuffix) {
		return nil
	}

	taskContext, ok := thisVal.Dereference()
	if !ok {
		return nil
	}
	spanPtr, ok := taskContext.ChildMemberWithName("parent_span_")
	if !ok || spanPtr.ValueAsUnsigned() == 0 {
		return nil
	}

	spanVal, ok := spanPtr.Dereference()
	if !ok {
		return nil
	}
	pimplPtr, ok := spanVal.ChildMemberWithName("pimpl_")
	if !ok {
		return nil
	}
	spanImpl, ok := pimplPtr.Dereference()
	if !ok {
		return nil
	}

	nameVal, _ := spanImpl.ChildMemberWithName("name_")
	spanIDVal, _ := spanImpl.ChildMemberWithName("span_id_")
	traceIDVal, _ := spanImpl.ChildMemberWithName("trace_id_")

	return &SpanInfo{
		Name:    readOrNone(nameVal, strs),
		SpanID:  readOrNone(spanIDVal, strs),
		TraceID: readOrNone(traceIDVal, strs),
	}
}

func readOrNone(v hostapi.Value, strs StringReader) string {
	if v == nil || strs == nil {
		return noneString
	}
	s, ok := strs.ReadStdString(v.AddressOf())
	if !ok {
		return noneString
	}
	return s
}

func dumpVariables(frame hostapi.Frame, out *strings.Builder, arguments, locals bool, width int) {
	vars := frame.Variables(arguments, locals)
	if len(vars) > 0 {
		if arguments {
			out.WriteString(fullWidth("FRAME ARGUMENTS", width, false))
			out.WriteString("\n")
		} else if locals {
			out.WriteString(fullWidth("FRAME LOCALS", width, false))
			out.WriteString("\n")
		}
	}
	for _, v := range vars {
		out.WriteString(v.Description())
	}
}
