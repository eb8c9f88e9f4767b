package wavinfo

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToneRoundTrip(t *testing.T) {
	tone := DefaultTone()
	tone.Duration = 250 * time.Millisecond
	tone.NumChannels = 2

	b, err := tone.Bytes()
	require.NoError(t, err)

	info, err := InspectBytes(b)
	require.NoError(t, err)

	assert.Equal(t, 44100, info.SampleRate)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, 2, info.NumChannels)
	assert.Equal(t, 1, info.AudioFormat)
	assert.Equal(t, int64(tone.Frames()*4), info.DataBytes)
	assert.Equal(t, 250*time.Millisecond, info.Duration)
	assert.False(t, info.Estimated)
	assert.Equal(t, len(b), headerSize+int(info.DataBytes))
}

func TestInspectFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	tone := DefaultTone()
	tone.SampleRate = 8000
	require.NoError(t, tone.WriteFile(path))

	info, err := InspectFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, info.SampleRate)
	assert.Equal(t, time.Second, info.Duration)
	assert.Contains(t, info.String(), "8000 Hz")
}

func TestInspect_PipeStyleHeader(t *testing.T) {
	b, err := DefaultTone().Bytes()
	require.NoError(t, err)

	// WAV written to a pipe cannot patch its sizes; sox leaves a huge
	// placeholder in the data chunk size.
	b[40], b[41], b[42], b[43] = 0xff, 0xff, 0xff, 0x7f

	info, err := InspectBytes(b)
	require.NoError(t, err)
	assert.True(t, info.Estimated)
	assert.Equal(t, int64(len(b)-headerSize), info.DataBytes)
}

func TestInspect_Invalid(t *testing.T) {
	_, err := InspectBytes([]byte("definitely not audio"))
	assert.ErrorIs(t, err, ErrInvalidWAV)

	_, err = InspectFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestTone_RejectsBadFormat(t *testing.T) {
	tone := DefaultTone()
	tone.BitDepth = 12
	_, err := tone.Bytes()
	assert.Error(t, err)

	tone = DefaultTone()
	tone.SampleRate = 0
	_, err = tone.Bytes()
	assert.Error(t, err)
}
