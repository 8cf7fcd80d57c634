package capture

import (
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	syntheticChunk = 100 * time.Millisecond
	toneHz         = 440.0
	toneAmplitude  = 8000
)

// Synthetic writes a 16-bit PCM WAV test tone in real time. It stands in for
// a microphone on machines without one.
type Synthetic struct {
	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	quality Quality
	stop    chan struct{}
	done    chan error
	peak    atomic.Int32
	phase   float64
}

func NewSynthetic() *Synthetic { return &Synthetic{} }

func (s *Synthetic) Ext() string { return ".wav" }

func (s *Synthetic) Prepare(path string, q Quality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if q.Channels <= 0 {
		q.Channels = 1
	}
	s.file = f
	s.quality = q
	s.enc = wav.NewEncoder(f, q.SampleRate, 16, q.Channels, 1)
	return nil
}

func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return ErrNotPrepared
	}
	s.stop = make(chan struct{})
	s.done = make(chan error, 1)
	go s.run(s.stop, s.done)
	return nil
}

func (s *Synthetic) run(stop <-chan struct{}, done chan<- error) {
	t := time.NewTicker(syntheticChunk)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			// flush the partial chunk so the file length matches wall time
			done <- s.write(time.Since(last))
			return
		case now := <-t.C:
			if err := s.write(now.Sub(last)); err != nil {
				done <- err
				return
			}
			last = now
		}
	}
}

func (s *Synthetic) write(d time.Duration) error {
	frames := int(d.Seconds() * float64(s.quality.SampleRate))
	if frames <= 0 {
		return nil
	}
	ch := s.quality.Channels
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: ch, SampleRate: s.quality.SampleRate},
		Data:           make([]int, frames*ch),
		SourceBitDepth: 16,
	}
	step := 2 * math.Pi * toneHz / float64(s.quality.SampleRate)
	peak := int32(0)
	for i := 0; i < frames; i++ {
		v := int(toneAmplitude * math.Sin(s.phase))
		s.phase += step
		for c := 0; c < ch; c++ {
			buf.Data[i*ch+c] = v
		}
		if a := int32(abs(v)); a > peak {
			peak = a
		}
	}
	s.phase = math.Mod(s.phase, 2*math.Pi)
	for {
		cur := s.peak.Load()
		if peak <= cur || s.peak.CompareAndSwap(cur, peak) {
			break
		}
	}
	return s.enc.Write(buf)
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return ErrNotStarted
	}
	close(s.stop)
	err := <-s.done
	s.stop = nil
	if cerr := s.enc.Close(); err == nil {
		err = cerr
	}
	s.enc = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	return err
}

func (s *Synthetic) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}
	if s.enc != nil {
		_ = s.enc.Close()
		s.enc = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *Synthetic) MaxAmplitude() int { return int(s.peak.Swap(0)) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
