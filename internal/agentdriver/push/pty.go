package push

import (
	"os"
	"os/exec"

	"github.com/creack/pty"

	"overseer/internal/errs"
)

// SpawnPTY starts cmd under a pseudo-terminal instead of plain pipes, for
// agent CLIs that refuse to run non-interactively (spec.md §4.6 names this
// as an optional push-driver mode). Grounded on
// igoryanba-ricochet/core/internal/host/pty_manager.go's PTYManager.Start
// (pty.Start(cmd), then a background copy of the PTY's combined output),
// generalized here to hand the PTY file back to the caller directly rather
// than buffering into an in-memory ring so the existing readLoop/writeLoop
// NDJSON parsing can operate on it unchanged (both reads and writes happen
// on the same *os.File at its child-command level, which pty.Start
// supports).
func SpawnPTY(cmd *exec.Cmd) (*os.File, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, errs.Wrap(errs.IO, "push.spawn_pty", err)
	}
	return ptmx, nil
}
