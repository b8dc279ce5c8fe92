package ptysession

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/alangmartini/godlyd/internal/protocol"
)

// newShellCmd builds the *exec.Cmd for the requested shell kind. WSL
// sessions pass a WSL-rewritten --cd path and an optional -d <distro>;
// native sessions launch PowerShell directly; custom sessions run the
// caller-supplied program and args verbatim.
func newShellCmd(shell protocol.ShellKind, cwd string, env map[string]string) (*exec.Cmd, error) {
	var cmd *exec.Cmd

	switch shell.Kind {
	case protocol.ShellKindNative:
		cmd = exec.Command("powershell.exe", "-NoLogo")
		if cwd != "" {
			cmd.Dir = cwd
		}
	case protocol.ShellKindWSL:
		args := []string{}
		if shell.Distribution != "" {
			args = append(args, "-d", shell.Distribution)
		}
		if cwd != "" {
			args = append(args, "--cd", windowsToWSLPath(cwd))
		}
		cmd = exec.Command("wsl.exe", args...)
	case protocol.ShellKindCustom:
		if shell.Program == "" {
			return nil, fmt.Errorf("ptysession: custom shell kind requires a program")
		}
		cmd = exec.Command(shell.Program, shell.Args...)
		if cwd != "" {
			cmd.Dir = cwd
		}
	default:
		return nil, fmt.Errorf("ptysession: unknown shell kind %q", shell.Kind)
	}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	return cmd, nil
}
