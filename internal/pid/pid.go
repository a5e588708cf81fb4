// Package pid guards against two simulators driving the same device.
package pid

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/vitalsim/internal/errors"
)

const filePrefix = "vitalsim"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Lock is a PID file held for one device.
type Lock struct {
	path string
}

// Path returns the PID file path for deviceID inside dir.
func Path(dir, deviceID string) string {
	return filepath.Join(dir, filePrefix+"-"+unsafeChars.ReplaceAllString(deviceID, "_")+".pid")
}

// Acquire writes the current process ID to the device's PID file in
// os.TempDir(). It fails with ErrAlreadyRunning while another live process
// holds the file. Stale files are taken over.
func Acquire(deviceID string) (*Lock, error) {
	return AcquireIn(os.TempDir(), deviceID)
}

func AcquireIn(dir, deviceID string) (*Lock, error) {
	errFactory := errors.New()
	path := Path(dir, deviceID)

	if data, err := os.ReadFile(path); err == nil {
		if running(strings.TrimSpace(string(data))) {
			return nil, errFactory.WithData(errors.ErrAlreadyRunning, deviceID)
		}
	} else if !os.IsNotExist(err) {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return &Lock{path: path}, nil
}

func running(content string) bool {
	pid, err := strconv.Atoi(content)
	if err != nil || pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// Release removes the PID file. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
