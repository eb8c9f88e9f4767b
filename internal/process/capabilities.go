package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
)

// ListEffects runs "sox --help" and returns the effect names listed on its
// "EFFECTS:" line, sorted.
func (r *SoxRunner) ListEffects(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, r.binary(), "--help")

	// sox --help exits 0 on most builds but some exit 1 after printing.
	output, err := cmd.Output()
	if len(output) == 0 && err != nil {
		return nil, fmt.Errorf("sox --help failed: %w", err)
	}

	effects := ParseEffectsList(output)
	if len(effects) == 0 {
		return nil, fmt.Errorf("no EFFECTS line in sox --help output")
	}
	return effects, nil
}

// ParseEffectsList extracts effect names from sox --help output.
func ParseEffectsList(help []byte) []string {
	const prefix = "EFFECTS:"

	scanner := bufio.NewScanner(bytes.NewReader(help))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		names := strings.Fields(strings.TrimPrefix(line, prefix))
		sort.Strings(names)
		return names
	}
	return nil
}

// Version runs "sox --version" and returns its trimmed output.
func (r *SoxRunner) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, r.binary(), "--version").Output()
	if err != nil {
		return "", fmt.Errorf("sox --version failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// UnknownEffects returns the effect names in d that are not in available,
// in chain order.
func UnknownEffects(d chain.Descriptor, available []string) []string {
	known := make(map[string]struct{}, len(available))
	for _, name := range available {
		known[name] = struct{}{}
	}

	var unknown []string
	for _, e := range d.Effects() {
		if _, ok := known[e.Name]; !ok {
			unknown = append(unknown, e.Name)
		}
	}
	return unknown
}

// Available reports whether the configured sox binary can be found.
func (r *SoxRunner) Available() bool {
	_, err := exec.LookPath(r.binary())
	return err == nil
}
