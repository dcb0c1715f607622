//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func maxRSSKb(state *os.ProcessState) int64 {
	return 0
}

func exitSignal(state *os.ProcessState) string {
	return ""
}
