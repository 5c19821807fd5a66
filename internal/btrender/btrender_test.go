package btrender

import (
	"strings"
	"testing"

	"github.com/itrofimow/llc2/internal/hostfake"
	"gotest.tools/v3/assert"
)

type fakeStrings struct {
	byAddr map[uint64]string
}

func (f fakeStrings) ReadStdString(addr uint64) (string, bool) {
	s, ok := f.byAddr[addr]
	return s, ok
}

func frame(desc string) *hostfake.Frame {
	return &hostfake.Frame{Desc: desc}
}

func TestRenderNoSleepSentinelProducesNothing(t *testing.T) {
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{frame("main()"), frame("foo()")}}
	ro := &hostfake.ReturnObject{}

	found := Render(0x1000, thread, ro, Options{Sentinels: DefaultSentinels(), Width: 80})
	assert.Equal(t, false, found)
	assert.Equal(t, 0, len(ro.Lines))
}

func TestRenderSleepAtIndexZeroAborts(t *testing.T) {
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{
		frame("engine::impl::TaskContext::Sleep(...)"),
		frame("caller()"),
	}}
	ro := &hostfake.ReturnObject{}

	found := Render(0x1000, thread, ro, Options{Sentinels: DefaultSentinels(), Width: 80})
	assert.Equal(t, false, found)
}

func TestRenderPrintsTitleAndTrimsAtEntrySentinel(t *testing.T) {
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{
		frame("inner()"),
		frame("engine::impl::TaskContext::Sleep(...)"),
		frame("middle()"),
		frame("utils::impl::WrappedCallImpl<Foo>(...)"),
		frame("runtime_glue()"),
	}}
	ro := &hostfake.ReturnObject{}

	found := Render(0x10000000, thread, ro, Options{Sentinels: DefaultSentinels(), Width: 40})
	assert.Equal(t, true, found)

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "FOUND SLEEPING COROUTINE"))
	assert.Assert(t, strings.Contains(joined, "coro stack address: 0x10000000"))
	assert.Assert(t, strings.Contains(joined, "inner()"))
	assert.Assert(t, strings.Contains(joined, "middle()"))
	assert.Assert(t, !strings.Contains(joined, "runtime_glue()"))
}

func TestRenderFullModeIncludesArgumentsAndLocalsHeaders(t *testing.T) {
	f0 := frame("engine::impl::TaskContext::Sleep(...)")
	f0.Args = []*hostfake.Value{{Desc: "arg0=1"}}
	f0.Locals = []*hostfake.Value{{Desc: "local0=2"}}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{frame("inner()"), f0}}
	ro := &hostfake.ReturnObject{}

	Render(0x1000, thread, ro, Options{Full: true, Sentinels: DefaultSentinels(), Width: 80})

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "FRAME ARGUMENTS"))
	assert.Assert(t, strings.Contains(joined, "FRAME LOCALS"))
	assert.Assert(t, strings.Contains(joined, "arg0=1"))
	assert.Assert(t, strings.Contains(joined, "local0=2"))
}

func TestRenderExtractsSpanInfo(t *testing.T) {
	nameVal := &hostfake.Value{Addr: 0x5000}
	spanIDVal := &hostfake.Value{Addr: 0x5008}
	traceIDVal := &hostfake.Value{Addr: 0x5010}
	spanImpl := &hostfake.Value{Members: map[string]*hostfake.Value{
		"name_":     nameVal,
		"span_id_":  spanIDVal,
		"trace_id_": traceIDVal,
	}}
	pimpl := &hostfake.Value{DerefTo: spanImpl, DerefOk: true}
	spanObj := &hostfake.Value{Members: map[string]*hostfake.Value{"pimpl_": pimpl}}
	spanPtr := &hostfake.Value{Unsigned: 0x4000, DerefTo: spanObj, DerefOk: true}
	taskContext := &hostfake.Value{Members: map[string]*hostfake.Value{"parent_span_": spanPtr}}
	thisVal := &hostfake.Value{TypeName: "engine::impl::TaskContext *", DerefTo: taskContext, DerefOk: true}

	sleepFrame := frame("engine::impl::TaskContext::Sleep(...)")
	sleepFrame.Vars = map[string]*hostfake.Value{"this": thisVal}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{frame("inner()"), sleepFrame}}
	ro := &hostfake.ReturnObject{}

	strs := fakeStrings{byAddr: map[uint64]string{
		0x5000: "request-handler",
		0x5008: "span-1",
		0x5010: "trace-1",
	}}

	Render(0x1000, thread, ro, Options{Sentinels: DefaultSentinels(), Strings: strs, Width: 80})

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "request-handler | span-1 | trace-1"))
}

func TestRenderMissingSpanReadsAsNone(t *testing.T) {
	nameVal := &hostfake.Value{Addr: 0x5000}
	spanImpl := &hostfake.Value{Members: map[string]*hostfake.Value{"name_": nameVal}}
	pimpl := &hostfake.Value{DerefTo: spanImpl, DerefOk: true}
	spanObj := &hostfake.Value{Members: map[string]*hostfake.Value{"pimpl_": pimpl}}
	spanPtr := &hostfake.Value{Unsigned: 0x4000, DerefTo: spanObj, DerefOk: true}
	taskContext := &hostfake.Value{Members: map[string]*hostfake.Value{"parent_span_": spanPtr}}
	thisVal := &hostfake.Value{TypeName: "engine::impl::TaskContext *", DerefTo: taskContext, DerefOk: true}

	sleepFrame := frame("engine::impl::TaskContext::Sleep(...)")
	sleepFrame.Vars = map[string]*hostfake.Value{"this": thisVal}
	thread := &hostfake.Thread{Frames: []*hostfake.Frame{frame("inner()"), sleepFrame}}
	ro := &hostfake.ReturnObject{}

	Render(0x1000, thread, ro, Options{Sentinels: DefaultSentinels(), Strings: fakeStrings{byAddr: map[uint64]string{}}, Width: 80})

	joined := ro.Joined()
	assert.Assert(t, strings.Contains(joined, "(none)"))
}
