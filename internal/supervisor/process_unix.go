//go:build unix

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// setPlatformProcessAttrs starts the game server in its own process group
// with output discarded.
func setPlatformProcessAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		cmd.Stdout = devnull
		cmd.Stderr = devnull
	}
}
