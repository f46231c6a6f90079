package captions

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cue is one timed caption entry.
type Cue struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the end time of the cue in seconds.
func (c Cue) End() float64 {
	return c.Start + c.Duration
}

// ParseFile reads a WEBVTT file and returns its cues in order.
func ParseFile(path string) ([]Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open caption file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read caption file: %w", err)
	}

	return Parse(lines), nil
}

// Parse converts WEBVTT lines into cues. Lines preceding the WEBVTT
// header, empty lines, and NOTE blocks are ignored. Text spanning
// multiple lines under one cue is joined with single spaces; cues with
// empty text are dropped.
func Parse(lines []string) []Cue {
	// Skip everything before the WEBVTT header. A missing header is
	// tolerated: some transcribers omit it on chunk files.
	start := 0
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "WEBVTT") {
			start = i + 1
			break
		}
	}

	var cues []Cue
	i := start
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])

		if line == "" {
			i++
			continue
		}

		// NOTE blocks run until the next blank line.
		if strings.HasPrefix(line, "NOTE") {
			for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
				i++
			}
			continue
		}

		if !strings.Contains(line, "-->") {
			// Cue identifier line; the timing line follows.
			i++
			continue
		}

		startSec, endSec, ok := parseTiming(line)
		i++
		if !ok {
			continue
		}

		var textLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			textLines = append(textLines, strings.TrimSpace(lines[i]))
			i++
		}

		text := strings.TrimSpace(strings.Join(textLines, " "))
		if text == "" {
			continue
		}

		cues = append(cues, Cue{
			Text:     text,
			Start:    startSec,
			Duration: endSec - startSec,
		})
	}

	return cues
}

// parseTiming parses a "start --> end" cue timing line.
func parseTiming(line string) (start, end float64, ok bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	// Cue settings may trail the end timestamp.
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, false
	}

	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	end, err = parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, false
	}

	return start, end, true
}

// parseTimestamp accepts HH:MM:SS.mmm or MM:SS.mmm.
func parseTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("malformed timestamp %q", ts)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.ReplaceAll(p, ",", "."), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q: %w", ts, err)
		}
		total = total*60 + v
	}
	return total, nil
}
