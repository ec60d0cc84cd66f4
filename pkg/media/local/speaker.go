package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/mockinterview/pkg/media"
)

// Speaker plays PCM through the default output device. Play calls are
// serialised; the output stream is opened on first use and kept open.
type Speaker struct {
	format media.AudioFormat
	frames int

	mu  sync.Mutex
	pa  *portaudio.Stream
	out []int16
}

var _ media.Speaker = (*Speaker)(nil)

func newSpeaker(f media.AudioFormat, frames int) *Speaker {
	return &Speaker{format: f, frames: frames}
}

// Format implements [media.Speaker].
func (s *Speaker) Format() media.AudioFormat { return s.format }

// Play implements [media.Speaker]. It writes pcm in buffer-sized pieces and
// checks ctx between pieces, so cancellation takes effect within one buffer.
func (s *Speaker) Play(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pa == nil {
		s.out = make([]int16, s.frames*s.format.Channels)
		pa, err := portaudio.OpenDefaultStream(0, s.format.Channels, float64(s.format.SampleRate), s.frames, s.out)
		if err != nil {
			return fmt.Errorf("local: open speaker: %w", err)
		}
		if err := pa.Start(); err != nil {
			pa.Close()
			return fmt.Errorf("local: start speaker: %w", err)
		}
		s.pa = pa
	}

	step := len(s.out) * 2
	for off := 0; off < len(pcm); off += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+step, len(pcm))
		bytesToInt16s(pcm[off:end], s.out)
		if err := s.pa.Write(); err != nil && err != portaudio.OutputUnderflowed {
			return fmt.Errorf("local: speaker write: %w", err)
		}
	}
	return nil
}

// Close stops and closes the output stream.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pa == nil {
		return nil
	}
	_ = s.pa.Stop()
	err := s.pa.Close()
	s.pa = nil
	return err
}
