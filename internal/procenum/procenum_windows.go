// Package procenum enumerates and terminates Windows process trees. It
// backs the Ctrl+C emulation in internal/ptysession: a raw 0x03 byte sent
// to a Windows pseudo-console does not generate a console control event
// for the child process tree the way a real console does, so the session
// terminates the shell's descendants directly instead.
package procenum

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// statusControlCExit is the exit code Windows consoles report for a
// process killed via Ctrl+C (STATUS_CONTROL_C_EXIT).
const statusControlCExit = 0xC000013A

type procEntry struct {
	pid, parentPid uint32
}

func snapshotProcesses() ([]procEntry, error) {
	handle, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("procenum: CreateToolhelp32Snapshot: %w", err)
	}
	defer windows.CloseHandle(handle)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(handle, &entry); err != nil {
		return nil, fmt.Errorf("procenum: Process32First: %w", err)
	}

	var entries []procEntry
	for {
		entries = append(entries, procEntry{pid: entry.ProcessID, parentPid: entry.ParentProcessID})
		if err := windows.Process32Next(handle, &entry); err != nil {
			break
		}
	}
	return entries, nil
}

// TerminateDescendants finds every live descendant of rootPid (breadth
// first) and terminates them deepest-first with STATUS_CONTROL_C_EXIT,
// leaving rootPid itself alive. It returns the number of processes
// terminated.
func TerminateDescendants(rootPid uint32) (int, error) {
	entries, err := snapshotProcesses()
	if err != nil {
		return 0, err
	}

	childrenOf := make(map[uint32][]uint32)
	for _, e := range entries {
		childrenOf[e.parentPid] = append(childrenOf[e.parentPid], e.pid)
	}

	var order []uint32
	queue := []uint32{rootPid}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[pid] {
			order = append(order, child)
			queue = append(queue, child)
		}
	}

	terminated := 0
	for i := len(order) - 1; i >= 0; i-- {
		pid := order[i]
		handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
		if err != nil {
			continue
		}
		if err := windows.TerminateProcess(handle, statusControlCExit); err == nil {
			terminated++
		}
		windows.CloseHandle(handle)
	}
	return terminated, nil
}
