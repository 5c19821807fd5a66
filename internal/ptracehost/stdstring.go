package ptracehost

import "encoding/binary"

// libstdc++'s std::string is {char* data; size_t size; union{char
// buf[16]; size_t cap}} on the x86_64 Itanium ABI: 32 bytes total, data
// pointer first, length second. Clang doesn't always emit debug info for
// it (https://bugs.llvm.org/show_bug.cgi?id=24202), so this reads the
// struct by raw offset instead of depending on DWARF for std::string,
// exactly like ReadStdString in the original did for libstdc++ debug
// info gaps.
const (
	stdStringBufferSize = 32
	stdStringMaxLen     = 100
)

// ReadStdString implements btrender.StringReader.
func (p *Process) ReadStdString(address uint64) (string, bool) {
	if address == 0 {
		return "", false
	}

	buf, err := p.ReadMemory(address, stdStringBufferSize)
	if err != nil {
		return "", false
	}

	dataPtr := binary.LittleEndian.Uint64(buf[0:8])
	size := binary.LittleEndian.Uint64(buf[8:16])
	if size > stdStringMaxLen {
		return "", false
	}
	if size == 0 {
		return "", true
	}

	data, err := p.ReadMemory(dataPtr, int(size))
	if err != nil {
		return "", false
	}
	return string(data), true
}
