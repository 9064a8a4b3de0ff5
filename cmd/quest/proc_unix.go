//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detach puts the daemon in its own session so it outlives the terminal.
func detach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
}
