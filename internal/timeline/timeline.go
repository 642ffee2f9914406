// Package timeline provides word counting and timestamp ladder utilities
// shared by the generation pipelines.
package timeline

import (
	"fmt"
	"strconv"
	"strings"
)

// WordCount counts whitespace-delimited non-empty tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// FormatStamp renders a second offset as "MM:SS". Offsets of an hour or more
// keep growing the minute field, matching how the prompts reference beats.
func FormatStamp(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// BuildLadder returns evenly spaced "MM:SS" stamps from stepSeconds up to
// targetMinutes*60 inclusive. The ladder is the fixed set of beats scene
// prompts must cover 1:1. Deterministic for fixed inputs.
func BuildLadder(targetMinutes, stepSeconds int) []string {
	if targetMinutes <= 0 || stepSeconds <= 0 {
		return nil
	}
	total := targetMinutes * 60
	stamps := make([]string, 0, total/stepSeconds)
	for t := stepSeconds; t <= total; t += stepSeconds {
		stamps = append(stamps, FormatStamp(t))
	}
	return stamps
}

// StampToSeconds parses "MM:SS" or "HH:MM:SS" into seconds. Malformed input
// yields 0: downstream chunk-boundary math must not fail on a stray bad
// timestamp.
func StampToSeconds(stamp string) int {
	parts := strings.Split(stamp, ":")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 2:
		return nums[0]*60 + nums[1]
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	default:
		return 0
	}
}
