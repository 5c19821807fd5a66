package ptracehost

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// memoryRegions enumerates /proc/<pid>/maps, the same information
// lldb::SBProcess::GetMemoryRegions surfaces to GetProcessMemoryRegions.
// A malformed line is reported as a failed slot rather than aborting the
// whole enumeration.
func memoryRegions(pid int) []hostapi.RegionResult {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return []hostapi.RegionResult{{Err: fmt.Errorf("opening %s: %w", path, err)}}
	}
	defer f.Close()

	var out []hostapi.RegionResult
	scanner := bufio.NewScanner(f)
	idx := 0
	for scanner.Scan() {
		region, err := parseMapsLine(scanner.Text())
		if err != nil {
			out = append(out, hostapi.RegionResult{Err: fmt.Errorf("index %d: %w", idx, err)})
		} else {
			out = append(out, hostapi.RegionResult{Region: region})
		}
		idx++
	}
	return out
}

func parseMapsLine(line string) (hostapi.Region, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return hostapi.Region{}, fmt.Errorf("empty maps line")
	}
	addrRange := strings.SplitN(fields[0], "-", 2)
	if len(addrRange) != 2 {
		return hostapi.Region{}, fmt.Errorf("malformed address range %q", fields[0])
	}
	begin, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return hostapi.Region{}, fmt.Errorf("malformed begin address %q: %w", addrRange[0], err)
	}
	end, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil {
		return hostapi.Region{}, fmt.Errorf("malformed end address %q: %w", addrRange[1], err)
	}
	return hostapi.Region{Begin: begin, End: end}, nil
}
