// Package wavinfo inspects WAV headers of sox input and output, and generates
// WAV test signals.
package wavinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the data is not a RIFF/WAVE stream.
var ErrInvalidWAV = errors.New("not a valid wav stream")

// headerSize is the size of a canonical PCM WAV header.
const headerSize = 44

// Info describes a WAV stream.
type Info struct {
	SampleRate  int
	BitDepth    int
	NumChannels int
	AudioFormat int

	// DataBytes is the PCM payload size.
	DataBytes int64

	Duration time.Duration

	// Estimated is set when the header's data size was unusable, which is
	// normal for WAV written to a pipe, and DataBytes was derived from the
	// stream length instead.
	Estimated bool
}

// String renders a one-line summary.
func (i Info) String() string {
	s := fmt.Sprintf("%d Hz, %d-bit, %d ch, %d bytes, %s",
		i.SampleRate, i.BitDepth, i.NumChannels, i.DataBytes, i.Duration.Round(time.Millisecond))
	if i.Estimated {
		s += " (estimated)"
	}
	return s
}

// FrameSize returns the bytes per sample frame.
func (i Info) FrameSize() int {
	return i.NumChannels * i.BitDepth / 8
}

// Inspect reads the header of the WAV stream in r. size is the total stream
// length; it is used when the header's data size is missing or too large.
func Inspect(r io.ReadSeeker, size int64) (Info, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return Info{}, ErrInvalidWAV
	}
	if err := decoder.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	info := Info{
		SampleRate:  int(decoder.SampleRate),
		BitDepth:    int(decoder.BitDepth),
		NumChannels: int(decoder.NumChans),
		AudioFormat: int(decoder.WavAudioFormat),
		DataBytes:   decoder.PCMLen(),
	}

	if info.DataBytes <= 0 || (size > 0 && info.DataBytes > size-headerSize) {
		info.DataBytes = max(size-headerSize, 0)
		info.Estimated = true
	}

	if frame := info.FrameSize(); frame > 0 && info.SampleRate > 0 {
		frames := info.DataBytes / int64(frame)
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

// InspectBytes inspects an in-memory WAV stream, e.g. a sink buffer.
func InspectBytes(b []byte) (Info, error) {
	return Inspect(bytes.NewReader(b), int64(len(b)))
}

// InspectFile inspects the WAV file at path.
func InspectFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}
	return Inspect(f, st.Size())
}
