package media_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/mockinterview/pkg/media"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestChannelConversion(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   []int16
		want []int16
	}{
		{"mono to stereo", media.MonoToStereo, []int16{100, 200, 300}, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", media.StereoToMono, []int16{100, 200, -100, -200}, []int16{150, -150}},
		{"stereo to mono no overflow", media.StereoToMono, []int16{32767, 32767}, []int16{32767}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(tt.fn(samplesToBytes(tt.in)))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample16(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		channels int
		src, dst int
		wantLen  int
	}{
		{"same rate", []int16{100, 200, 300}, 1, 48000, 48000, 3},
		{"upsample mono", []int16{1000, 2000}, 1, 16000, 48000, 6},
		{"downsample mono", []int16{100, 200, 300, 400, 500, 600}, 1, 48000, 16000, 2},
		{"upsample stereo", []int16{100, 200, 300, 400}, 2, 16000, 48000, 12},
		{"zero rate untouched", []int16{1, 2}, 1, 0, 48000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(media.Resample16(samplesToBytes(tt.in), tt.channels, tt.src, tt.dst))
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestResample16_Interpolates(t *testing.T) {
	got := bytesToSamples(media.Resample16(samplesToBytes([]int16{1000, 2000}), 1, 16000, 48000))
	if got[0] != 1000 {
		t.Errorf("first sample = %d, want 1000", got[0])
	}
	if last := got[len(got)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample = %d, want close to 2000", last)
	}
}

func TestConverter(t *testing.T) {
	target := media.AudioFormat{SampleRate: 48000, Channels: 2}
	c := &media.Converter{Target: target}

	same := samplesToBytes([]int16{1, 2, 3, 4})
	if got := c.Convert(same, target); &got[0] != &same[0] {
		t.Error("matching format should return input unchanged")
	}

	got := c.Convert(samplesToBytes([]int16{500, 600}), media.AudioFormat{SampleRate: 16000, Channels: 1})
	if n := len(got) / 2; n != 12 {
		t.Fatalf("converted samples = %d, want 12", n)
	}

	if got := c.Convert([]byte{1, 2, 3}, target); got != nil {
		t.Fatalf("odd byte count should be dropped, got %v", got)
	}
}

func TestAudioFormatString(t *testing.T) {
	tests := []struct {
		f    media.AudioFormat
		want string
	}{
		{media.AudioFormat{SampleRate: 48000, Channels: 1}, "48000Hz mono"},
		{media.AudioFormat{SampleRate: 16000, Channels: 2}, "16000Hz stereo"},
		{media.AudioFormat{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
