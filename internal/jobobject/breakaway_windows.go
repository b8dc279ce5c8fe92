package jobobject

import (
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
)

const (
	detachedProcess        = 0x00000008
	createNewProcessGroup  = 0x00000200
	createBreakawayFromJob = 0x01000000
	createNoWindow         = 0x08000000
	errorAccessDenied      = 5
)

// SpawnDetachedBreakaway launches path with args as a detached process
// that survives the caller's exit, attempting CREATE_BREAKAWAY_FROM_JOB
// first. If the calling process's Job Object forbids breakaway, CreateProcess
// fails with ERROR_ACCESS_DENIED and this falls back to launching via WMI's
// Win32_Process.Create, which runs the new process from the WMI provider
// host (wmiprvse.exe) and is therefore never a member of the caller's job.
func SpawnDetachedBreakaway(logger *slog.Logger, path string, args ...string) error {
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: detachedProcess | createNewProcessGroup | createBreakawayFromJob,
	}

	err := cmd.Start()
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if asErrno(err, &errno) && errno == errorAccessDenied {
		logger.Info("CREATE_BREAKAWAY_FROM_JOB denied, launching via WMI to escape job object", "path", path)
		return spawnViaWMI(path, args)
	}
	return fmt.Errorf("jobobject: spawn %s: %w", path, err)
}

func asErrno(err error, out *syscall.Errno) bool {
	for {
		if errno, ok := err.(syscall.Errno); ok {
			*out = errno
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
		if err == nil {
			return false
		}
	}
}

// spawnViaWMI invokes Win32_Process.Create through PowerShell's
// Invoke-CimMethod. WMI-launched processes don't inherit environment
// variables, so any state the child needs must be passed as command-line
// arguments (already true of path/args here).
func spawnViaWMI(path string, args []string) error {
	commandLine := path
	for _, a := range args {
		commandLine += " " + a
	}

	psCommand := fmt.Sprintf(
		`$r = Invoke-CimMethod -ClassName Win32_Process -MethodName Create -Arguments @{CommandLine='%s'}; if ($r.ReturnValue -ne 0) { throw "WMI Create failed: $($r.ReturnValue)" }`,
		commandLine,
	)

	cmd := exec.Command("powershell", "-NoProfile", "-WindowStyle", "Hidden", "-Command", psCommand)
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNoWindow}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("jobobject: WMI launch failed: %w (output: %s)", err, out)
	}
	return nil
}
