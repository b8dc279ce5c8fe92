// Package jobobject wraps a Windows Job Object with KILL_ON_JOB_CLOSE
// (New/Assign); the daemon does not assign session shells to one, so closing
// a session does not reap leftover descendants through a Job. It also provides
// a breakaway launch path for the daemon binary itself: if the process
// that spawns the daemon (e.g. a dev-mode build tool) sits inside a Job
// Object with KILL_ON_JOB_CLOSE, the daemon must escape it or die when
// that parent exits.
package jobobject

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Job wraps a Windows Job Object configured to kill all member processes
// when the job handle is closed (JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE).
type Job struct {
	handle windows.Handle
}

// New creates a job object and configures kill-on-close semantics.
func New() (*Job, error) {
	handle, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("jobobject: CreateJobObject: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		handle,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(handle)
		return nil, fmt.Errorf("jobobject: SetInformationJobObject: %w", err)
	}

	return &Job{handle: handle}, nil
}

// Assign places the given process (by handle) into the job.
func (j *Job) Assign(process windows.Handle) error {
	if err := windows.AssignProcessToJobObject(j.handle, process); err != nil {
		return fmt.Errorf("jobobject: AssignProcessToJobObject: %w", err)
	}
	return nil
}

// Close releases the job. If JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE is set and
// this was the last handle, every member process is terminated.
func (j *Job) Close() error {
	return windows.CloseHandle(j.handle)
}
