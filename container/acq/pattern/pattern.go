/*
NAME
  pattern.go

DESCRIPTION
  pattern.go computes the uncompressed interleave pattern from
  per-channel frequency dividers, and the chunked read plan including
  the end-of-stream truncation edge case (§4.3, component E). This is
  the central algorithm of the format: the on-disk sample order for
  mixed-frequency channels, and what happens when a recording stops
  partway through a repetition of that order.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pattern computes the uncompressed-mode interleave pattern
// and chunked read plan for the acq container format.
package pattern

import "fmt"

// Plan is one chunked read step: repeat Pattern Reps times, each
// element of Pattern naming the channel index that contributes the
// next sample.
type Plan struct {
	Pattern []int
	Reps    int
}

// Build computes the interleave pattern from per-channel frequency
// dividers and returns the sequence of chunked read plans needed to
// account for exactly pointCounts[i] samples per channel i, including
// any final edited repetition required by channels that fall short of
// a whole repetition (§4.3's "end-of-stream policy").
//
// chunkSize bounds how many raw samples (across all channels) a single
// Plan may cover; it is purely a memory-shape knob and must not affect
// the sequence of channel indices produced when the plans are expanded
// in order - see ExpandAll and the property tests.
func Build(dividers []int, pointCounts []int, chunkSize int) ([]Plan, error) {
	if len(dividers) == 0 {
		return nil, fmt.Errorf("pattern: no channels")
	}
	if len(dividers) != len(pointCounts) {
		return nil, fmt.Errorf("pattern: dividers and pointCounts length mismatch")
	}
	for i, d := range dividers {
		if d <= 0 || d&(d-1) != 0 {
			return nil, fmt.Errorf("pattern: channel %d frequency divider %d is not a power of two", i, d)
		}
	}
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}

	l := lcmAll(dividers)
	base := buildBasePattern(dividers, l)
	countInPattern := make([]int, len(dividers))
	for i, d := range dividers {
		countInPattern[i] = l / d
	}

	maxRepsPerPlan := chunkSize / len(base)
	if maxRepsPerPlan < 1 {
		maxRepsPerPlan = 1
	}

	var plans []Plan

	// Consume every whole repetition of the base pattern that all
	// channels can support, in chunkSize-bounded pieces.
	wholeReps := 0
	if allAtLeast(pointCounts, countInPattern) {
		wholeReps = minRatio(pointCounts, countInPattern)
	}
	for reps := wholeReps; reps > 0; {
		take := reps
		if take > maxRepsPerPlan {
			take = maxRepsPerPlan
		}
		plans = append(plans, Plan{Pattern: base, Reps: take})
		reps -= take
	}

	remaining := make([]int, len(pointCounts))
	for i := range remaining {
		remaining[i] = pointCounts[i] - wholeReps*countInPattern[i]
	}

	// Any channel still short needs each remaining repetition edited in
	// place (§4.3's "the subtle part"): occurrences of a deficient
	// channel are deleted from the end of the base pattern until that
	// channel's usage in the tail matches its remaining count.
	for anyPositive(remaining) {
		tail := trimTail(base, remaining, countInPattern)
		if len(tail) == 0 {
			break
		}
		plans = append(plans, Plan{Pattern: tail, Reps: 1})
		for _, idx := range tail {
			remaining[idx]--
		}
	}

	return plans, nil
}

// buildBasePattern produces the slot-by-slot channel-index sequence
// for one repetition period of length l: channel i contributes a
// sample in slot s iff s mod dividers[i] == 0.
func buildBasePattern(dividers []int, l int) []int {
	var base []int
	for s := 0; s < l; s++ {
		for i, d := range dividers {
			if s%d == 0 {
				base = append(base, i)
			}
		}
	}
	return base
}

// trimTail deletes, from the end, occurrences of every channel whose
// remaining count is less than its full per-repetition count, until
// each such channel's occurrence count in the tail equals its
// remaining count. Channels with remaining >= their full count are
// left untouched in this repetition.
func trimTail(base []int, remaining, countInPattern []int) []int {
	tail := append([]int(nil), base...)
	for ch, rem := range remaining {
		if rem >= countInPattern[ch] {
			continue
		}
		toRemove := countInPattern[ch] - rem
		for removed := 0; removed < toRemove; {
			found := false
			for j := len(tail) - 1; j >= 0; j-- {
				if tail[j] == ch {
					tail = append(tail[:j], tail[j+1:]...)
					removed++
					found = true
					break
				}
			}
			if !found {
				break
			}
		}
	}
	return tail
}

// ExpandAll replays plans into the full sequence of channel indices
// they describe. Intended for tests and small fixtures; production
// code should consume Plans directly to stay within the memory
// ceiling (§5).
func ExpandAll(plans []Plan) []int {
	var out []int
	for _, p := range plans {
		for r := 0; r < p.Reps; r++ {
			out = append(out, p.Pattern...)
		}
	}
	return out
}

func allAtLeast(remaining, countInPattern []int) bool {
	for i := range remaining {
		if remaining[i] < countInPattern[i] {
			return false
		}
	}
	return true
}

func minRatio(remaining, countInPattern []int) int {
	min := -1
	for i := range remaining {
		r := remaining[i] / countInPattern[i]
		if min == -1 || r < min {
			min = r
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func anyPositive(xs []int) bool {
	for _, x := range xs {
		if x > 0 {
			return true
		}
	}
	return false
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}

func lcmAll(xs []int) int {
	l := 1
	for _, x := range xs {
		l = lcm(l, x)
	}
	return l
}
