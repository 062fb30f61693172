// Package cpuset contains helpers for the CPUSet functionality in
// golang.org/x/sys/unix.
package cpuset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxCPUs is the number of CPU indices a unix.CPUSet can hold.
const MaxCPUs = int(unsafe.Sizeof(unix.CPUSet{})) * 8

// Parse constructs a new CPU set from a Linux CPU list formatted string,
// as found in /sys/devices/system/cpu/present.
//
// See: http://man7.org/linux/man-pages/man7/cpuset.7.html#FORMATS
func Parse(s string) (unix.CPUSet, error) {
	var set unix.CPUSet

	s = strings.TrimSpace(s)
	if s == "" {
		return set, errors.New("cannot parse empty string")
	}

	// "0-5,34,46-48" => ["0-5", "34", "46-48"]
	for _, r := range strings.Split(s, ",") {
		boundaries := strings.SplitN(r, "-", 2)
		start, err := parseIndex(boundaries[0])
		if err != nil {
			return set, err
		}
		end := start
		if len(boundaries) == 2 {
			end, err = parseIndex(boundaries[1])
			if err != nil {
				return set, err
			}
		}
		if start > end {
			return set, fmt.Errorf("invalid range %q (%d > %d)", r, start, end)
		}
		for e := start; e <= end; e++ {
			set.Set(e)
		}
	}
	return set, nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= MaxCPUs {
		return 0, fmt.Errorf("cpu %d out of range [0, %d)", i, MaxCPUs)
	}
	return i, nil
}

// Range calls fn with the index of every CPU available in the set.
func Range(s unix.CPUSet, fn func(int)) {
	count := s.Count()
	for i := 0; count > 0; i++ {
		if s.IsSet(i) {
			fn(i)
			count--
		}
	}
}

// List returns the CPUs in s in ascending order.
func List(s unix.CPUSet) []int {
	cpus := make([]int, 0, s.Count())
	Range(s, func(i int) { cpus = append(cpus, i) })
	return cpus
}

// Highest returns the largest CPU index in s, or -1 if s is empty.
func Highest(s unix.CPUSet) int {
	highest := -1
	Range(s, func(i int) { highest = i })
	return highest
}

// String formats s as a Linux CPU list, e.g. "0-2,5".
func String(s unix.CPUSet) string {
	var sb strings.Builder
	start, prev := -1, -1
	flush := func() {
		if start < 0 {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		if start == prev {
			fmt.Fprintf(&sb, "%d", start)
		} else {
			fmt.Fprintf(&sb, "%d-%d", start, prev)
		}
	}
	Range(s, func(i int) {
		if i != prev+1 || start < 0 {
			flush()
			start = i
		}
		prev = i
	})
	flush()
	return sb.String()
}
