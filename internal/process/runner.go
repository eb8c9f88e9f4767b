// Package process renders effects chains into sox command lines.
package process

import (
	"os/exec"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
)

// Runner turns a chain description into a command.
// This interface allows the executor to be independent of sox specifics.
type Runner interface {
	// BuildArgs returns the full argv, including the binary as argv[0].
	BuildArgs(d chain.Descriptor) ([]string, error)

	// BuildCommand returns a ready-to-start command for d. The command
	// should NOT be started yet.
	BuildCommand(d chain.Descriptor) (*exec.Cmd, []string, error)

	// Name returns a human-readable name for this process type.
	Name() string
}
