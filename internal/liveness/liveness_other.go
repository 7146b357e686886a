//go:build !unix

package liveness

import (
	"os"
	"syscall"
)

func probe(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
