package stream

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// ProcessSpawnError reports that the external encoder binary could not be
// launched.
type ProcessSpawnError struct {
	Binary string
	Err    error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

// process is one live external encoder instance. Termination addresses the
// whole process group, since the encoder may spawn helpers of its own.
type process interface {
	PID() int
	// Output is the combined stdout/stderr stream; it reaches EOF when the
	// process exits.
	Output() io.ReadCloser
	// Terminate sends a graceful termination signal to the process group.
	Terminate() error
	// Kill forcefully kills the process group.
	Kill() error
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
}

// launcher spawns encoder processes. Tests substitute a fake.
type launcher interface {
	Launch(binary string, args []string) (process, error)
}

type execLauncher struct{}

func (execLauncher) Launch(binary string, args []string) (process, error) {
	cmd := exec.Command(binary, args...)
	// New process group so termination reaches ffmpeg's own children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &ProcessSpawnError{Binary: binary, Err: err}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &ProcessSpawnError{Binary: binary, Err: err}
	}
	// The child holds its own copy of the write end; closing ours lets the
	// read side reach EOF once the process group exits.
	pw.Close()

	return &execProcess{cmd: cmd, output: pr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	output *os.File
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Output() io.ReadCloser {
	return p.output
}

func (p *execProcess) Terminate() error {
	return p.signalGroup(syscall.SIGTERM)
}

func (p *execProcess) Kill() error {
	return p.signalGroup(syscall.SIGKILL)
}

func (p *execProcess) signalGroup(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	pgid, err := syscall.Getpgid(pid)
	if err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return p.cmd.Process.Signal(sig)
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	p.output.Close()
	return err
}
