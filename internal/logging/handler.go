package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength caps a single stderr line; longer lines are cut.
	MaxLineLength = 4096

	// MaxBufferedLines is how many recent lines a handler remembers.
	MaxBufferedLines = 100
)

// Tags sox puts in front of its messages ("sox FAIL formats: ...").
const (
	TagFail  = "FAIL"
	TagWarn  = "WARN"
	TagInfo  = "INFO"
	TagDebug = "DBUG"
)

// StderrHandler is an io.Writer for sox's stderr. Complete lines are logged
// as sox_stderr events, counted by tag and kept for RecentLines.
type StderrHandler struct {
	runID   string
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	recent  []string
	tags    map[string]int
	pending []byte
}

// NewStderrHandler creates a handler for one run.
func NewStderrHandler(runID string, logger *slog.Logger, verbose bool) *StderrHandler {
	return &StderrHandler{
		runID:   runID,
		logger:  logger,
		verbose: verbose,
		recent:  make([]string, 0, MaxBufferedLines),
		tags:    make(map[string]int),
	}
}

// Write handles every complete line in p. An unterminated tail waits for the
// next Write or Flush. It never fails.
func (h *StderrHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.pending = append(h.pending, p...)
	var lines []string
	for {
		i := bytes.IndexByte(h.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(h.pending[:i]), "\r"))
		h.pending = h.pending[i+1:]
	}
	if len(h.pending) > MaxLineLength {
		lines = append(lines, string(h.pending))
		h.pending = nil
	}
	h.pending = bytes.Clone(h.pending)
	h.mu.Unlock()

	for _, l := range lines {
		h.HandleLine(l)
	}
	return len(p), nil
}

// Flush handles the unterminated tail, if any.
func (h *StderrHandler) Flush() {
	h.mu.Lock()
	tail := string(h.pending)
	h.pending = nil
	h.mu.Unlock()

	if tail != "" {
		h.HandleLine(tail)
	}
}

// HandleLine records and logs one line. Blank lines are ignored.
func (h *StderrHandler) HandleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}
	tag := soxTag(line)

	h.mu.Lock()
	if len(h.recent) == MaxBufferedLines {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:MaxBufferedLines-1]
	}
	h.recent = append(h.recent, line)
	if tag != "" {
		h.tags[tag]++
	}
	h.mu.Unlock()

	level := lineLevel(tag, line)
	if level == slog.LevelDebug && !h.verbose {
		return
	}
	attrs := []any{"run_id", h.runID, "line", line}
	if tag != "" {
		attrs = append(attrs, "tag", tag)
	}
	h.logger.Log(context.Background(), level, "sox_stderr", attrs...)
}

// RecentLines returns up to n of the latest lines, oldest first.
func (h *StderrHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	n = min(max(n, 0), len(h.recent))
	return append([]string(nil), h.recent[len(h.recent)-n:]...)
}

// LastLine returns the latest line, or "".
func (h *StderrHandler) LastLine() string {
	if l := h.RecentLines(1); len(l) == 1 {
		return l[0]
	}
	return ""
}

// TagCounts returns how many lines carried each sox tag.
func (h *StderrHandler) TagCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int, len(h.tags))
	for k, v := range h.tags {
		out[k] = v
	}
	return out
}

// soxTag extracts the tag from "sox TAG ..." lines.
func soxTag(line string) string {
	rest, ok := strings.CutPrefix(line, "sox ")
	if !ok {
		return ""
	}
	tag, _, _ := strings.Cut(rest, " ")
	switch tag {
	case TagFail, TagWarn, TagInfo, TagDebug:
		return tag
	}
	return ""
}

// lineLevel maps a line to a log level. Failures are logged as warnings: the
// run result carries the error itself.
func lineLevel(tag, line string) slog.Level {
	switch tag {
	case TagFail, TagWarn:
		return slog.LevelWarn
	case TagInfo, TagDebug:
		return slog.LevelDebug
	}
	lower := strings.ToLower(line)
	for _, s := range []string{"can't open", "no such file", "unknown effect", "clipped"} {
		if strings.Contains(lower, s) {
			return slog.LevelWarn
		}
	}
	return slog.LevelDebug
}
