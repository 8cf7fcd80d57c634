package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	ErrNotPrepared = errors.New("capture device not prepared")
	ErrNotStarted  = errors.New("capture device not started")
)

// Quality 采样参数预设
type Quality struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate"`
	Channels   int    `json:"channels"`
}

var (
	QualityHigh     = Quality{Name: "high", SampleRate: 44100, BitRate: 192000, Channels: 1}
	QualityStandard = Quality{Name: "standard", SampleRate: 16000, BitRate: 64000, Channels: 1}
)

func QualityFor(high bool) Quality {
	if high {
		return QualityHigh
	}
	return QualityStandard
}

// Device is one capture session. A device is used for a single recording:
// Prepare, Start, Stop, Release.
type Device interface {
	// Ext is the file extension the device writes, with the leading dot.
	Ext() string
	Prepare(path string, q Quality) error
	Start() error
	// Stop blocks until the output file is finalized.
	Stop() error
	Release()
	// MaxAmplitude returns the peak absolute sample since the previous call,
	// in the 0..32767 range. Devices that cannot meter return 0.
	MaxAmplitude() int
}

// Factory builds a fresh Device for every recording.
type Factory func() Device

// NewFactory returns the factory for a backend name: synthetic, arecord or ffmpeg.
func NewFactory(backend, device string) (Factory, error) {
	switch strings.ToLower(backend) {
	case "", "synthetic":
		return func() Device { return NewSynthetic() }, nil
	case "arecord":
		return func() Device { return NewExec(ExecArecord, device) }, nil
	case "ffmpeg":
		return func() Device { return NewExec(ExecFFmpeg, device) }, nil
	}
	return nil, fmt.Errorf("unsupported capture backend: %s", backend)
}

// CheckPermissions reports whether recording can proceed: the recordings
// directory is writable and the backend's capture tool is installed.
func CheckPermissions(dir, backend string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".perm-*")
	if err != nil {
		return fmt.Errorf("recordings directory not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)

	switch strings.ToLower(backend) {
	case "arecord", "ffmpeg":
		if _, err := exec.LookPath(strings.ToLower(backend)); err != nil {
			return fmt.Errorf("capture tool unavailable: %w", err)
		}
	}
	return nil
}

// IsRecordingFile reports whether name looks like a file produced by a
// capture session.
func IsRecordingFile(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, "rec") || len(base) <= 3 {
		return false
	}
	return base[3] >= '0' && base[3] <= '9'
}
