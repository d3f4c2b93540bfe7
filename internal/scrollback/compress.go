package scrollback

import (
	"fmt"
	"regexp"
)

// Heuristics for progress-indicator lines: package managers, download bars,
// rich-style bars, carriage-return percentage tickers.
var progressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[#+`),
	regexp.MustCompile(`\d+%\s*\|[=▮█]`),
	regexp.MustCompile(`\d+%\s*━`),
	regexp.MustCompile(`Downloading.*\d+%`),
	regexp.MustCompile(`Uploading.*\d+%`),
	regexp.MustCompile(`\r.*\d+%`),
}

const (
	// Contiguous non-blank runs longer than this get their middle removed.
	largeBlockThreshold = 80
	largeBlockKeep      = 20
)

func isProgressLine(line string) bool {
	for _, p := range progressPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// compressLines shrinks scrollback before it becomes model context:
// progress-bar runs collapse to their endpoints, oversized output blocks
// keep only their head and tail, and blank runs dedup to one line.
func compressLines(lines []string) []string {
	lines = collapseProgressRuns(lines)
	lines = truncateLargeBlocks(lines)
	return dedupBlankRuns(lines)
}

func collapseProgressRuns(lines []string) []string {
	result := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		if !isProgressLine(lines[i]) {
			result = append(result, lines[i])
			i++
			continue
		}
		j := i + 1
		for j < len(lines) && isProgressLine(lines[j]) {
			j++
		}
		count := j - i
		if count > 2 {
			result = append(result, lines[i])
			result = append(result, fmt.Sprintf("... (%d lines of progress output) ...", count-2))
			result = append(result, lines[j-1])
		} else {
			result = append(result, lines[i:j]...)
		}
		i = j
	}
	return result
}

func truncateLargeBlocks(lines []string) []string {
	result := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		if lines[i] == "" {
			result = append(result, lines[i])
			i++
			continue
		}
		start := i
		for i < len(lines) && lines[i] != "" {
			i++
		}
		blockLen := i - start
		if blockLen > largeBlockThreshold {
			result = append(result, lines[start:start+largeBlockKeep]...)
			result = append(result, fmt.Sprintf("... (%d lines truncated) ...", blockLen-2*largeBlockKeep))
			result = append(result, lines[i-largeBlockKeep:i]...)
		} else {
			result = append(result, lines[start:i]...)
		}
	}
	return result
}

func dedupBlankRuns(lines []string) []string {
	result := make([]string, 0, len(lines))
	prevBlank := false
	for _, line := range lines {
		if line == "" {
			if !prevBlank {
				result = append(result, line)
			}
			prevBlank = true
			continue
		}
		prevBlank = false
		result = append(result, line)
	}
	return result
}
