// Package regionscan enumerates a debuggee's memory mappings and narrows
// them to candidate coroutine stacks: those whose length matches the
// configured RealStackSize.
package regionscan

import (
	"log/slog"
	"sort"

	"github.com/itrofimow/llc2/internal/hostapi"
)

// Candidates returns the regions of process whose length equals
// realStackSize, sorted ascending by Begin so the reported stack address
// (Begin) is stable across invocations. Per-region read errors are logged
// and do not abort enumeration, mirroring GetProcessMemoryRegions.
func Candidates(process hostapi.Process, realStackSize uint64, ro hostapi.ReturnObject) []hostapi.Region {
	results := process.MemoryRegions()

	regions := make([]hostapi.Region, 0, len(results))
	for i, res := range results {
		if res.Err != nil {
			ro.Printf("Failed to get memory region info at index %d: %v\n", i, res.Err)
			slog.Debug("region read failed", "index", i, "err", res.Err)
			continue
		}
		regions = append(regions, res.Region)
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Begin < regions[j].Begin })

	out := make([]hostapi.Region, 0, len(regions))
	for _, r := range regions {
		if r.Len() == realStackSize {
			out = append(out, r)
		}
	}
	return out
}
