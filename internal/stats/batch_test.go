package stats

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

func TestBatch_Empty(t *testing.T) {
	s := NewBatch().Aggregate()

	if s.Settled != 0 || s.SuccessRate() != 0 {
		t.Errorf("empty batch = %+v", s)
	}
	if s.DurationP50 != 0 || s.DurationMax != 0 {
		t.Errorf("durations should be zero: p50=%v max=%v", s.DurationP50, s.DurationMax)
	}
}

func TestBatch_Record(t *testing.T) {
	b := NewBatch()
	for i := 1; i <= 100; i++ {
		b.Record(outcome.RunResult{
			Kind:     outcome.Success,
			PID:      i,
			Duration: time.Duration(i) * time.Millisecond,
			BytesOut: 10,
		})
	}
	b.Record(outcome.RunResult{Kind: outcome.OverflowFailure, PID: 200, Duration: 50 * time.Millisecond})
	b.Record(outcome.RunResult{Kind: outcome.InternalFailure, PID: 201, ExitCode: -1, Duration: 50 * time.Millisecond})

	s := b.Aggregate()

	if s.Settled != 102 || s.Succeeded != 100 {
		t.Errorf("settled=%d succeeded=%d", s.Settled, s.Succeeded)
	}
	if s.ByKind[outcome.OverflowFailure] != 1 || s.ByKind[outcome.InternalFailure] != 1 {
		t.Errorf("ByKind = %v", s.ByKind)
	}
	if s.ExitCodes[0] != 101 {
		t.Errorf("ExitCodes[0] = %d, want 101", s.ExitCodes[0])
	}
	if _, ok := s.ExitCodes[-1]; ok {
		t.Error("internal failures should not record exit codes")
	}
	if s.BytesOut != 1000 {
		t.Errorf("BytesOut = %d, want 1000", s.BytesOut)
	}
	if s.DurationMin != time.Millisecond || s.DurationMax != 100*time.Millisecond {
		t.Errorf("min=%v max=%v", s.DurationMin, s.DurationMax)
	}

	// t-digest estimates; allow a few percent of slack.
	if s.DurationP50 < 45*time.Millisecond || s.DurationP50 > 56*time.Millisecond {
		t.Errorf("p50 = %v, want ~50ms", s.DurationP50)
	}
	if s.DurationP99 < 95*time.Millisecond || s.DurationP99 > 100*time.Millisecond {
		t.Errorf("p99 = %v, want ~99ms", s.DurationP99)
	}
	if len(s.RecentFailures) != 2 {
		t.Errorf("RecentFailures = %d, want 2", len(s.RecentFailures))
	}
}

func TestBatch_RecentFailuresBounded(t *testing.T) {
	b := NewBatch()
	for i := 0; i < MaxRecentFailures+5; i++ {
		b.Record(outcome.RunResult{Kind: outcome.ProcessFailure, PID: i + 1, ExitCode: 1, RunID: string(rune('a' + i%26))})
	}

	s := b.Aggregate()
	if len(s.RecentFailures) != MaxRecentFailures {
		t.Fatalf("RecentFailures = %d, want %d", len(s.RecentFailures), MaxRecentFailures)
	}
	if s.RecentFailures[0].RunID != "f" {
		t.Errorf("oldest kept failure = %q, want %q", s.RecentFailures[0].RunID, "f")
	}
	if s.RecentFailures[0].Message == "" {
		t.Error("failure message should be the classified error")
	}
}

func TestBatch_SortedExitCodes(t *testing.T) {
	b := NewBatch()
	for _, code := range []int{143, 0, 2, 0} {
		kind := outcome.ProcessFailure
		if code == 0 {
			kind = outcome.Success
		}
		b.Record(outcome.RunResult{Kind: kind, PID: 1, ExitCode: code})
	}

	got := b.Aggregate().SortedExitCodes()
	want := []int{0, 2, 143}
	if len(got) != len(want) {
		t.Fatalf("SortedExitCodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SortedExitCodes = %v, want %v", got, want)
		}
	}
}

func TestBatch_Reset(t *testing.T) {
	b := NewBatch()
	b.Record(outcome.RunResult{Kind: outcome.Success, PID: 1, Duration: time.Second})
	b.Reset()

	if b.Settled() != 0 {
		t.Errorf("Settled after Reset = %d", b.Settled())
	}
	if s := b.Aggregate(); len(s.ByKind) != 0 || s.DurationMax != 0 {
		t.Errorf("stats after Reset = %+v", s)
	}
}

func TestBatch_RecordRejected(t *testing.T) {
	b := NewBatch()
	b.RecordRejected("job-1#2", &outcome.SpawnError{Err: errors.New("no such file"), Cmd: []string{"sox", "-n", "-n"}})
	b.RecordRejected("job-2#1", outcome.ErrSinkExists)

	s := b.Aggregate()
	if s.Rejected != 2 || b.Rejected() != 2 {
		t.Errorf("Rejected = %d/%d, want 2", s.Rejected, b.Rejected())
	}
	if s.Settled != 0 {
		t.Errorf("rejected runs should not count as settled: %d", s.Settled)
	}
	if len(s.RecentFailures) != 2 {
		t.Fatalf("RecentFailures = %v", s.RecentFailures)
	}
	if f := s.RecentFailures[0]; f.RunID != "job-1#2" || !strings.Contains(f.CommandLine, `"sox"`) {
		t.Errorf("first failure = %+v", f)
	}
	if f := s.RecentFailures[1]; f.CommandLine != "" || f.Message == "" {
		t.Errorf("second failure = %+v", f)
	}
}

func TestBatch_Concurrent(t *testing.T) {
	b := NewBatch()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Record(outcome.RunResult{Kind: outcome.Success, PID: 1, Duration: time.Millisecond})
				_ = b.Aggregate()
			}
		}()
	}
	wg.Wait()

	if b.Settled() != 800 {
		t.Errorf("Settled = %d, want 800", b.Settled())
	}
}

func TestBatch_RecentRates(t *testing.T) {
	b := NewBatch()
	b.Record(outcome.RunResult{Kind: outcome.Success, PID: 1, BytesIn: 100, BytesOut: 300})
	time.Sleep(20 * time.Millisecond)
	b.Sample()

	s := b.Aggregate()
	if s.RecentRunsPerSecond <= 0 {
		t.Errorf("RecentRunsPerSecond = %v, want > 0", s.RecentRunsPerSecond)
	}
	if s.RecentBytesPerSecond <= s.RecentRunsPerSecond {
		t.Errorf("RecentBytesPerSecond = %v, runs/s = %v", s.RecentBytesPerSecond, s.RecentRunsPerSecond)
	}

	b.Reset()
	if s := b.Aggregate(); s.RecentRunsPerSecond != 0 {
		t.Errorf("rate after Reset = %v", s.RecentRunsPerSecond)
	}
}
