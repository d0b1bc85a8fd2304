package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func encodeTestWAV(t *testing.T, samples []float64, sampleRate int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, samples, sampleRate))
	return buf.Bytes()
}

func TestDecodeWAVReportsDuration(t *testing.T) {
	const sr = 22050
	samples := sine(440, sr, sr*3/2)
	data := encodeTestWAV(t, samples, sr)

	audio, err := NewDecoder(nil).DecodeBytes(context.Background(), "tone.WAV", data)
	require.NoError(t, err)

	assert.Equal(t, sr, audio.SampleRate)
	assert.Equal(t, 1, audio.Channels)
	assert.Equal(t, 1, audio.SourceChannels)
	assert.Equal(t, "wav", audio.Format)
	assert.Len(t, audio.PCM, len(samples))
	assert.InDelta(t, float64(len(samples))/sr, audio.DurationSeconds(), 1e-9)
	assert.InDelta(t, 1.5, audio.Duration.Seconds(), 1e-6)

	// 16-bit quantization
	for i := range samples {
		require.InDelta(t, samples[i], audio.PCM[i], 1.0/16384)
	}
}

func TestDecodeRejectsUnsupportedExtension(t *testing.T) {
	_, err := NewDecoder(nil).DecodeBytes(context.Background(), "notes.txt", []byte("hello"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestDecodeRejectsEmptyUpload(t *testing.T) {
	_, err := NewDecoder(nil).DecodeBytes(context.Background(), "a.wav", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidAudio))
}

func TestDecodeMalformedWAVFailsFast(t *testing.T) {
	_, err := NewDecoder(nil).DecodeBytes(context.Background(), "a.wav", []byte("RIFFnot really a wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode a.wav")
	assert.ErrorIs(t, err, ErrDecode)
}

func TestMaxDurationTruncates(t *testing.T) {
	const sr = 8000
	data := encodeTestWAV(t, sine(200, sr, sr*2), sr)

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 500_000_000 // 0.5s
	audio, err := NewDecoder(cfg).DecodeBytes(context.Background(), "a.wav", data)
	require.NoError(t, err)
	assert.Len(t, audio.PCM, sr/2)
}

func TestDecodeOggThroughFFmpeg(t *testing.T) {
	// stereo frames: (0.5, -0.5), (1, 0), (0.25, 0.25)
	raw := []float64{0.5, -0.5, 1, 0, 0.25, 0.25}
	pcm := make([]byte, len(raw)*8)
	for i, v := range raw {
		binary.LittleEndian.PutUint64(pcm[i*8:], math.Float64bits(v))
	}

	probe := `{"streams":[{"codec_type":"audio","codec_name":"vorbis","sample_rate":"44100","channels":2,"duration":"0.0001","bit_rate":"128000"}]}`

	var calls []string
	d := NewDecoder(nil)
	d.run = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		calls = append(calls, name)
		assert.Equal(t, []byte("OggS..."), stdin)
		if name == "ffprobe" {
			return []byte(probe), nil
		}
		assert.Contains(t, args, "44100")
		return pcm, nil
	}

	audio, err := d.DecodeBytes(context.Background(), "clip.ogg", []byte("OggS..."))
	require.NoError(t, err)

	assert.Equal(t, []string{"ffprobe", "ffmpeg"}, calls)
	assert.Equal(t, 44100, audio.SampleRate)
	assert.Equal(t, 2, audio.SourceChannels)
	assert.Equal(t, "ffmpeg", audio.Metadata.Decoder)
	assert.InDeltaSlice(t, []float64{0, 0.5, 0.25}, audio.PCM, 1e-12)
}

func TestFFmpegFailureSurfaces(t *testing.T) {
	d := NewDecoder(nil)
	d.run = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		return nil, errors.New("ffprobe failed: exit status 1")
	}
	_, err := d.DecodeBytes(context.Background(), "clip.ogg", []byte("junk"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestParseFFprobeOutput(t *testing.T) {
	_, err := parseFFprobeOutput([]byte(`{"streams":[]}`))
	assert.Error(t, err)

	_, err = parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"video","sample_rate":"1"}]}`))
	assert.Error(t, err)

	_, err = parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","sample_rate":"n/a","channels":1}]}`))
	assert.Error(t, err)

	meta, err := parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"opus","sample_rate":"48000","channels":1,"duration":"2.5"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 2.5, meta.Duration)
	assert.Equal(t, 0, meta.Bitrate)
}

func TestNewAudioDataRejectsNonFinite(t *testing.T) {
	_, err := NewAudioData([]float64{0, math.NaN()}, 8000)
	assert.ErrorIs(t, err, ErrInvalidAudio)

	_, err = NewAudioData([]float64{0, 1}, 0)
	assert.ErrorIs(t, err, ErrInvalidAudio)

	a, err := NewAudioData(make([]float64, 16000), 8000)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.DurationSeconds())
}

func TestDownmixAverages(t *testing.T) {
	assert.Equal(t, []float64{0.5, 0}, downmix([]float64{1, 0, 0.5, -0.5}, 2))
	in := []float64{1, 2}
	assert.Equal(t, in, downmix(in, 1))
}

func TestEncodeWAVClips(t *testing.T) {
	data := encodeTestWAV(t, []float64{2, -2, 0}, 8000)
	audio, err := NewDecoder(nil).DecodeBytes(context.Background(), "x.wav", data)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, audio.PCM[0], 1e-3)
	assert.InDelta(t, -1.0, audio.PCM[1], 1e-3)
	assert.Equal(t, 0.0, audio.PCM[2])
}
