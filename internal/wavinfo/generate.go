package wavinfo

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmFormat is the WAVE_FORMAT_PCM audio format code.
const pcmFormat = 1

// Tone describes a generated sine signal.
type Tone struct {
	Frequency   float64
	Duration    time.Duration
	SampleRate  int
	BitDepth    int
	NumChannels int

	// Amplitude is in (0, 1]; zero means 0.5.
	Amplitude float64
}

// DefaultTone returns a one second 440 Hz 16-bit mono tone at 44.1 kHz.
func DefaultTone() Tone {
	return Tone{
		Frequency:   440,
		Duration:    time.Second,
		SampleRate:  44100,
		BitDepth:    16,
		NumChannels: 1,
		Amplitude:   0.5,
	}
}

// Frames returns the number of sample frames in the tone.
func (t Tone) Frames() int {
	return int(t.Duration * time.Duration(t.SampleRate) / time.Second)
}

// Write encodes the tone as a PCM WAV stream.
func (t Tone) Write(w io.WriteSeeker) error {
	if t.SampleRate <= 0 || t.NumChannels <= 0 {
		return errors.New("sample rate and channel count must be positive")
	}
	if t.BitDepth != 8 && t.BitDepth != 16 && t.BitDepth != 24 && t.BitDepth != 32 {
		return fmt.Errorf("unsupported bit depth %d", t.BitDepth)
	}
	amp := t.Amplitude
	if amp <= 0 || amp > 1 {
		amp = 0.5
	}

	enc := wav.NewEncoder(w, t.SampleRate, t.BitDepth, t.NumChannels, pcmFormat)

	frames := t.Frames()
	peak := float64(int(1)<<(t.BitDepth-1) - 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: t.NumChannels,
			SampleRate:  t.SampleRate,
		},
		SourceBitDepth: t.BitDepth,
		Data:           make([]int, 0, frames*t.NumChannels),
	}
	for i := 0; i < frames; i++ {
		v := int(amp * peak * math.Sin(2*math.Pi*t.Frequency*float64(i)/float64(t.SampleRate)))
		if t.BitDepth == 8 {
			// 8-bit WAV is unsigned.
			v += 128
		}
		for c := 0; c < t.NumChannels; c++ {
			buf.Data = append(buf.Data, v)
		}
	}

	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Bytes returns the encoded tone.
func (t Tone) Bytes() ([]byte, error) {
	var ws writeSeeker
	if err := t.Write(&ws); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// WriteFile encodes the tone to path.
func (t Tone) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		w.buf = append(w.buf, make([]byte, need-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
