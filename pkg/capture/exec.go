package capture

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

type ExecTool string

const (
	ExecArecord ExecTool = "arecord"
	ExecFFmpeg  ExecTool = "ffmpeg"
)

// stopTimeout bounds how long a capture tool may take to finalize its file
// after SIGINT before it is killed.
const stopTimeout = 10 * time.Second

// Exec drives an external capture tool. The tool writes the output file
// itself and is asked to finish with SIGINT so containers get closed.
type Exec struct {
	mu     sync.Mutex
	tool   ExecTool
	device string
	args   []string
	cmd    *exec.Cmd
	stderr bytes.Buffer
	exited chan error
}

func NewExec(tool ExecTool, device string) *Exec {
	if device == "" {
		device = "default"
	}
	return &Exec{tool: tool, device: device}
}

func (e *Exec) Ext() string {
	if e.tool == ExecFFmpeg {
		return ".m4a"
	}
	return ".wav"
}

func (e *Exec) Prepare(path string, q Quality) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := exec.LookPath(string(e.tool)); err != nil {
		return err
	}
	if q.Channels <= 0 {
		q.Channels = 1
	}
	switch e.tool {
	case ExecArecord:
		e.args = []string{
			"-q", "-D", e.device,
			"-f", "S16_LE",
			"-c", strconv.Itoa(q.Channels),
			"-r", strconv.Itoa(q.SampleRate),
			"-t", "wav", path,
		}
	case ExecFFmpeg:
		e.args = []string{
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-f", "alsa", "-i", e.device,
			"-ac", strconv.Itoa(q.Channels),
			"-ar", strconv.Itoa(q.SampleRate),
			"-c:a", "aac",
			"-b:a", strconv.Itoa(q.BitRate),
			"-y", path,
		}
	default:
		return fmt.Errorf("unsupported capture tool: %s", e.tool)
	}
	return nil
}

func (e *Exec) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.args == nil {
		return ErrNotPrepared
	}
	e.stderr.Reset()
	e.cmd = exec.Command(string(e.tool), e.args...)
	e.cmd.Stderr = &e.stderr
	if err := e.cmd.Start(); err != nil {
		e.cmd = nil
		return fmt.Errorf("start %s: %w", e.tool, err)
	}
	e.exited = make(chan error, 1)
	go func(cmd *exec.Cmd, ch chan<- error) { ch <- cmd.Wait() }(e.cmd, e.exited)
	return nil
}

func (e *Exec) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil {
		return ErrNotStarted
	}
	return e.terminate()
}

func (e *Exec) terminate() error {
	defer func() { e.cmd = nil }()
	if err := e.cmd.Process.Signal(os.Interrupt); err != nil {
		_ = e.cmd.Process.Kill()
	}
	select {
	case err := <-e.exited:
		if err != nil && !interrupted(err) {
			return fmt.Errorf("%s exited: %w: %s", e.tool, err, bytes.TrimSpace(e.stderr.Bytes()))
		}
		return nil
	case <-time.After(stopTimeout):
		_ = e.cmd.Process.Kill()
		<-e.exited
		return fmt.Errorf("%s did not stop within %v", e.tool, stopTimeout)
	}
}

func (e *Exec) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd != nil {
		_ = e.terminate()
	}
	e.args = nil
}

func (e *Exec) MaxAmplitude() int { return 0 }

// interrupted treats the exit caused by our own SIGINT as success.
func interrupted(err error) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	if ee.ExitCode() == -1 || ee.ExitCode() == 1 || ee.ExitCode() == 255 || ee.ExitCode() == 130 {
		return true
	}
	return false
}
