//go:build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setPlatformProcessAttrs detaches the game server from the console so
// Ctrl-C in the agent does not reach it. Stop falls back to Kill because
// Windows cannot deliver os.Interrupt to a child.
func setPlatformProcessAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
