package captions

import (
	"math"
	"strings"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.001
}

func TestParseBasic(t *testing.T) {
	input := strings.Split(`WEBVTT

00:00.000 --> 00:02.500
Hello world.

00:02.500 --> 00:05.000
Second cue.
`, "\n")

	cues := Parse(input)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "Hello world." {
		t.Errorf("unexpected text: %q", cues[0].Text)
	}
	if !almostEqual(cues[0].Start, 0) || !almostEqual(cues[0].Duration, 2.5) {
		t.Errorf("unexpected timing: start=%f duration=%f", cues[0].Start, cues[0].Duration)
	}
	if !almostEqual(cues[1].Start, 2.5) {
		t.Errorf("unexpected second cue start: %f", cues[1].Start)
	}
}

func TestParseHourTimestamps(t *testing.T) {
	input := strings.Split(`WEBVTT

01:02:03.500 --> 01:02:05.000
Long video cue.
`, "\n")

	cues := Parse(input)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	want := 1*3600 + 2*60 + 3.5
	if !almostEqual(cues[0].Start, want) {
		t.Errorf("expected start %f, got %f", want, cues[0].Start)
	}
}

func TestParseIgnoresPreambleNotesAndIDs(t *testing.T) {
	input := strings.Split(`Kind: captions
Language: en
WEBVTT

NOTE This is a comment
spanning two lines

1
00:00.000 --> 00:01.000
First.

NOTE another note

2
00:01.000 --> 00:02.000
Second.
`, "\n")

	cues := Parse(input)
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Text != "First." || cues[1].Text != "Second." {
		t.Errorf("unexpected texts: %q, %q", cues[0].Text, cues[1].Text)
	}
}

func TestParseJoinsMultilineText(t *testing.T) {
	input := strings.Split(`WEBVTT

00:00.000 --> 00:03.000
line one
line two
`, "\n")

	cues := Parse(input)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Text != "line one line two" {
		t.Errorf("expected joined text, got %q", cues[0].Text)
	}
}

func TestParseDropsEmptyCues(t *testing.T) {
	input := strings.Split(`WEBVTT

00:00.000 --> 00:01.000

00:01.000 --> 00:02.000
Kept.
`, "\n")

	cues := Parse(input)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Text != "Kept." {
		t.Errorf("unexpected text: %q", cues[0].Text)
	}
}

func TestParseCueSettingsAfterEndTimestamp(t *testing.T) {
	input := strings.Split(`WEBVTT

00:00.000 --> 00:01.000 align:start position:0%
With settings.
`, "\n")

	cues := Parse(input)
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if !almostEqual(cues[0].Duration, 1.0) {
		t.Errorf("unexpected duration: %f", cues[0].Duration)
	}
}

func TestMergeChunksOffsets(t *testing.T) {
	chunks := [][]Cue{
		{{Text: "a", Start: 0, Duration: 2}, {Text: "b", Start: 5, Duration: 2}},
		{{Text: "c", Start: 1, Duration: 3}},
		{{Text: "d", Start: 0.5, Duration: 1}},
	}

	merged := MergeChunks(chunks, 30)
	if len(merged) != 4 {
		t.Fatalf("expected 4 cues, got %d", len(merged))
	}
	if !almostEqual(merged[2].Start, 31) {
		t.Errorf("chunk 1 cue should be shifted by 30s: got %f", merged[2].Start)
	}
	if !almostEqual(merged[3].Start, 60.5) {
		t.Errorf("chunk 2 cue should be shifted by 60s: got %f", merged[3].Start)
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	cues := []Cue{
		{Text: "Hello there.", Start: 1.25, Duration: 2.5},
		{Text: "Goodbye.", Start: 3661.5, Duration: 1},
	}

	path := t.TempDir() + "/out.vtt"
	if err := WriteFile(path, cues); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	parsed, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(parsed))
	}
	if parsed[0].Text != "Hello there." {
		t.Errorf("unexpected text: %q", parsed[0].Text)
	}
	if !almostEqual(parsed[1].Start, 3661.5) {
		t.Errorf("hour timestamp did not round-trip: %f", parsed[1].Start)
	}
}
