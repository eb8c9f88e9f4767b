package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"trace", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			if result := parseLevel(tc.input); result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestNewLogger_VerboseOverride(t *testing.T) {
	logger := NewLogger("text", "error", true)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger should enable debug")
	}

	logger = NewLogger("invalid", "warn", false)
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("warn logger should not enable info")
	}
}

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	testCases := []struct {
		format string
		isJSON bool
	}{
		{"json", true},
		{"JSON", true},
		{"text", false},
		{"", false},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			var buf bytes.Buffer
			NewLoggerWithWriter(&buf, tc.format, "info").Info("run_started", "run_id", "abc")

			out := buf.String()
			if got := strings.HasPrefix(out, "{"); got != tc.isJSON {
				t.Errorf("output %q: json = %v, want %v", out, got, tc.isJSON)
			}
			if !strings.Contains(out, "run_started") {
				t.Errorf("output missing message: %q", out)
			}
		})
	}
}

func TestForRun(t *testing.T) {
	var buf bytes.Buffer
	ForRun(NewLoggerWithWriter(&buf, "text", "info"), "run-42").Info("run_settled")

	if !strings.Contains(buf.String(), "run_id=run-42") {
		t.Errorf("output missing run id: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("ignored")
}

// =============================================================================
// StderrHandler
// =============================================================================

func newTestStderr(verbose bool) (*StderrHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	return NewStderrHandler("run-1", logger, verbose), &buf
}

func TestStderrHandler_HandleLine(t *testing.T) {
	h, _ := newTestStderr(true)

	h.HandleLine("sox INFO sox: effects chain: input 44100Hz")
	h.HandleLine("   ")

	if lines := h.RecentLines(5); len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %v", len(lines), lines)
	}
}

func TestStderrHandler_HandleLine_Truncation(t *testing.T) {
	h, _ := newTestStderr(true)

	h.HandleLine(strings.Repeat("x", MaxLineLength+100))

	line := h.LastLine()
	if !strings.HasSuffix(line, "...(truncated)") {
		t.Error("Truncated line should end with '...(truncated)'")
	}
	if len(line) != MaxLineLength+len("...(truncated)") {
		t.Errorf("len = %d", len(line))
	}
}

func TestStderrHandler_Write_SplitsLines(t *testing.T) {
	h, _ := newTestStderr(true)

	h.Write([]byte("sox WARN rate: rate clipped 3 samples\nsox FA"))
	h.Write([]byte("IL formats: can't open output file\r\npartial"))

	lines := h.RecentLines(10)
	if len(lines) != 2 {
		t.Fatalf("Expected 2 complete lines, got %d: %v", len(lines), lines)
	}
	if lines[1] != "sox FAIL formats: can't open output file" {
		t.Errorf("second line = %q", lines[1])
	}

	h.Flush()
	lines = h.RecentLines(10)
	if len(lines) != 3 || lines[2] != "partial" {
		t.Errorf("after Flush lines = %v", lines)
	}
	h.Flush()
	if n := len(h.RecentLines(10)); n != 3 {
		t.Errorf("second Flush added lines: %d", n)
	}
}

func TestStderrHandler_Write_LongUnterminated(t *testing.T) {
	h, _ := newTestStderr(true)

	h.Write([]byte(strings.Repeat("y", MaxLineLength+1)))

	if n := len(h.RecentLines(10)); n != 1 {
		t.Fatalf("overlong tail should be handled as a line, got %d lines", n)
	}
}

func TestStderrHandler_RecentLines(t *testing.T) {
	h, _ := newTestStderr(false)
	for i := 0; i < MaxBufferedLines+50; i++ {
		h.HandleLine(fmt.Sprintf("line%d", i))
	}
	lines := h.RecentLines(MaxBufferedLines + 10)
	if len(lines) != MaxBufferedLines {
		t.Fatalf("Got %d lines, want %d", len(lines), MaxBufferedLines)
	}
	if lines[0] != "line50" || lines[len(lines)-1] != fmt.Sprintf("line%d", MaxBufferedLines+49) {
		t.Errorf("window = %q .. %q", lines[0], lines[len(lines)-1])
	}

	h2, _ := newTestStderr(false)
	for i := 0; i < 5; i++ {
		h2.HandleLine(fmt.Sprintf("line%d", i))
	}
	lines = h2.RecentLines(3)
	if len(lines) != 3 || lines[0] != "line2" || lines[2] != "line4" {
		t.Errorf("Unexpected lines: %v", lines)
	}
	if got := h2.RecentLines(-1); len(got) != 0 {
		t.Errorf("RecentLines(-1) = %v", got)
	}
}

func TestStderrHandler_LastLine_Empty(t *testing.T) {
	h, _ := newTestStderr(false)
	if l := h.LastLine(); l != "" {
		t.Errorf("LastLine() = %q, want empty", l)
	}
}

func TestSoxTag(t *testing.T) {
	testCases := []struct {
		line string
		tag  string
	}{
		{"sox FAIL formats: can't open input file", TagFail},
		{"sox WARN dither: dither clipped 12 samples", TagWarn},
		{"sox INFO sox: Overwriting `out.wav'", TagInfo},
		{"sox DBUG wav: Reading Wave file", TagDebug},
		{"sox: Version v14.4.2", ""},
		{"In:100%  00:00:01.00", ""},
	}

	for _, tc := range testCases {
		if got := soxTag(tc.line); got != tc.tag {
			t.Errorf("soxTag(%q) = %q, want %q", tc.line, got, tc.tag)
		}
	}
}

func TestLineLevel(t *testing.T) {
	testCases := []struct {
		line     string
		expected slog.Level
	}{
		{"sox FAIL formats: can't open input file `in.wav': No such file or directory", slog.LevelWarn},
		{"sox FAIL sox: unknown effect `warp'", slog.LevelWarn},
		{"sox WARN dither: dither clipped 12 samples; decrease volume?", slog.LevelWarn},
		{"sox INFO sox: Overwriting `out.wav'", slog.LevelDebug},
		{"sox DBUG wav: Reading Wave file", slog.LevelDebug},
		{"In:100%  00:00:01.00 [00:00:00.00] Out:44.1k", slog.LevelDebug},
		{"rate clipped 4 samples", slog.LevelWarn},
	}

	for _, tc := range testCases {
		t.Run(tc.line[:min(20, len(tc.line))], func(t *testing.T) {
			if level := lineLevel(soxTag(tc.line), tc.line); level != tc.expected {
				t.Errorf("lineLevel(%q) = %v, want %v", tc.line, level, tc.expected)
			}
		})
	}
}

func TestStderrHandler_TagCounts(t *testing.T) {
	h, _ := newTestStderr(false)

	h.HandleLine("sox FAIL formats: can't open input file")
	h.HandleLine("sox WARN rate: rate clipped 1 samples")
	h.HandleLine("sox WARN dither: dither clipped 4 samples")
	h.HandleLine("normal line")

	counts := h.TagCounts()
	if counts[TagWarn] != 2 || counts[TagFail] != 1 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}

	counts[TagWarn] = 99
	if h.TagCounts()[TagWarn] != 2 {
		t.Error("TagCounts should return a copy")
	}
}

func TestStderrHandler_VerboseLogging(t *testing.T) {
	t.Run("verbose_true", func(t *testing.T) {
		h, buf := newTestStderr(true)
		h.HandleLine("sox INFO detail")
		if !strings.Contains(buf.String(), "sox INFO detail") {
			t.Error("Verbose mode should log debug lines")
		}
	})

	t.Run("verbose_false", func(t *testing.T) {
		h, buf := newTestStderr(false)
		h.HandleLine("sox INFO detail")
		if strings.Contains(buf.String(), "sox INFO detail") {
			t.Error("Non-verbose mode should not log debug lines")
		}
	})

	t.Run("verbose_false_logs_failures", func(t *testing.T) {
		h, buf := newTestStderr(false)
		h.HandleLine("sox FAIL trim: usage")
		out := buf.String()
		if !strings.Contains(out, "sox FAIL trim: usage") || !strings.Contains(out, "tag=FAIL") {
			t.Errorf("Non-verbose mode should still log failures: %q", out)
		}
	})
}

func TestStderrHandler_Concurrent(t *testing.T) {
	h, _ := newTestStderr(false)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			h.Write([]byte("sox WARN concurrent line\n"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = h.RecentLines(10)
			_ = h.TagCounts()
		}
	}()
	wg.Wait()

	if n := h.TagCounts()[TagWarn]; n != 100 {
		t.Errorf("WARN count = %d, want 100", n)
	}
}
