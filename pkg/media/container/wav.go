package container

import (
	"encoding/binary"
	"io"

	"github.com/MrWong99/mockinterview/pkg/media"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// wavWriter streams a RIFF/WAV file. The header is written up front with
// placeholder sizes that Finalize patches once the length is known.
type wavWriter struct {
	format  media.AudioFormat
	sink    io.Writer
	started bool
	closed  bool
}

func newWAV(f media.AudioFormat, sink io.Writer) *wavWriter {
	return &wavWriter{format: f, sink: sink}
}

func (w *wavWriter) MIMEType() string { return MIMEWAV }

func (w *wavWriter) Write(pcm []byte) error {
	if w.closed {
		return io.ErrClosedPipe
	}
	if !w.started {
		w.started = true
		if _, err := w.sink.Write(wavHeader(w.format, 0)); err != nil {
			return err
		}
	}
	if len(pcm) == 0 {
		return nil
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	_, err := w.sink.Write(buf)
	return err
}

func (w *wavWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.started {
		// An empty recording is still a valid file.
		w.started = true
		_, err := w.sink.Write(wavHeader(w.format, 0))
		return err
	}
	return nil
}

// Finalize rewrites the RIFF and data sizes of an assembled recording.
func (w *wavWriter) Finalize(blob []byte) []byte {
	if len(blob) < wavHeaderSize {
		return blob
	}
	dataSize := len(blob) - wavHeaderSize
	binary.LittleEndian.PutUint32(blob[4:8], uint32(36+dataSize))
	binary.LittleEndian.PutUint32(blob[40:44], uint32(dataSize))
	return blob
}

// wavHeader builds a canonical 44-byte PCM WAV header.
func wavHeader(f media.AudioFormat, dataSize int) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

// EncodeWAV wraps a complete PCM buffer in a WAV container.
func EncodeWAV(f media.AudioFormat, pcm []byte) []byte {
	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, wavHeader(f, len(pcm))...)
	return append(out, pcm...)
}
