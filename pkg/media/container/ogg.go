package container

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"layeh.com/gopus"

	"github.com/MrWong99/mockinterview/pkg/media"
)

const (
	opusFrameMs = 20
	// opusClockRate is the RTP/Ogg granule clock for Opus regardless of the
	// input sample rate.
	opusClockRate  = 48000
	opusMaxPacket  = 4000
	opusPayloadTyp = 111
)

// oggOpusWriter encodes 20 ms PCM frames with Opus and muxes the packets into
// Ogg pages. Input that does not fill a frame is carried over to the next
// Write; Close pads the remainder with silence.
type oggOpusWriter struct {
	enc       *gopus.Encoder
	ogg       *oggwriter.OggWriter
	format    media.AudioFormat
	frameSize int // samples per channel per frame
	frameByte int

	pending []byte
	seq     uint16
	ts      uint32
	ssrc    uint32
	closed  bool
}

func newOggOpus(f media.AudioFormat, sink io.Writer) (*oggOpusWriter, error) {
	switch f.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("container: opus does not support %d Hz", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return nil, fmt.Errorf("container: opus does not support %d channels", f.Channels)
	}

	enc, err := gopus.NewEncoder(f.SampleRate, f.Channels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("container: create opus encoder: %w", err)
	}
	ogg, err := oggwriter.NewWith(sink, uint32(f.SampleRate), uint16(f.Channels))
	if err != nil {
		return nil, fmt.Errorf("container: create ogg writer: %w", err)
	}

	frameSize := f.SampleRate * opusFrameMs / 1000
	return &oggOpusWriter{
		enc:       enc,
		ogg:       ogg,
		format:    f,
		frameSize: frameSize,
		frameByte: frameSize * f.Channels * 2,
		ssrc:      rand.Uint32(),
	}, nil
}

func (w *oggOpusWriter) MIMEType() string { return MIMEOggOpus }

func (w *oggOpusWriter) Write(pcm []byte) error {
	if w.closed {
		return io.ErrClosedPipe
	}
	w.pending = append(w.pending, pcm...)
	for len(w.pending) >= w.frameByte {
		if err := w.encodeFrame(w.pending[:w.frameByte]); err != nil {
			return err
		}
		w.pending = w.pending[w.frameByte:]
	}
	return nil
}

func (w *oggOpusWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.pending) > 0 {
		frame := make([]byte, w.frameByte)
		copy(frame, w.pending)
		w.pending = nil
		if err := w.encodeFrame(frame); err != nil {
			return err
		}
	}
	return w.ogg.Close()
}

func (w *oggOpusWriter) encodeFrame(frame []byte) error {
	packet, err := w.enc.Encode(bytesToInt16s(frame), w.frameSize, opusMaxPacket)
	if err != nil {
		return fmt.Errorf("container: opus encode: %w", err)
	}
	err = w.ogg.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadTyp,
			SequenceNumber: w.seq,
			Timestamp:      w.ts,
			SSRC:           w.ssrc,
		},
		Payload: packet,
	})
	if err != nil {
		return fmt.Errorf("container: write ogg page: %w", err)
	}
	w.seq++
	w.ts += opusClockRate * opusFrameMs / 1000
	return nil
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
