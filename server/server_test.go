package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-spectra/analyzer"
	"github.com/RyanBlaney/sonido-spectra/render"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

const testRate = 8000

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	s := New(
		transcode.NewDecoder(transcode.DefaultDecoderConfig()),
		analyzer.New(nil),
		render.NewRenderer(320, 240),
		opts,
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func sineWAV(t *testing.T, freq float64, n int) []byte {
	t.Helper()
	pcm := make([]float64, n)
	for i := range pcm {
		pcm[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	var buf bytes.Buffer
	require.NoError(t, transcode.EncodeWAV(&buf, pcm, testRate))
	return buf.Bytes()
}

func upload(t *testing.T, url, filename string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func decodeWAVBody(t *testing.T, resp *http.Response) *transcode.AudioData {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	audio, err := transcode.NewDecoder(nil).DecodeBytes(context.Background(), "out.wav", data)
	require.NoError(t, err)
	return audio
}

func TestIndexAndHealth(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Audio Spectral Analysis")

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.NotEmpty(t, health.Header.Get(HeaderRequestID))
}

func TestInfo(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var info struct {
		Formats []string              `json:"formats"`
		Views   []string              `json:"views"`
		Effects []string              `json:"effects"`
		Ranges  map[string][2]float64 `json:"ranges"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, render.Views(), info.Views)
	assert.Equal(t, analyzer.Effects(), info.Effects)
	assert.Contains(t, info.Formats, "wav")
	assert.Equal(t, [2]float64{20, 10000}, info.Ranges["cutoff"])
}

func TestProperties(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := upload(t, ts.URL+"/api/properties", "tone.wav", sineWAV(t, 440, 2*testRate), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var props analyzer.Properties
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&props))
	assert.InDelta(t, 2.0, props.DurationSeconds, 1e-9)
	assert.Equal(t, testRate, props.SampleRate)
	assert.Equal(t, 1, props.Channels)
}

func TestSpectrum(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := upload(t, ts.URL+"/api/spectrum", "tone.wav", sineWAV(t, 1000, testRate), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var spec struct {
		Frequencies []float64 `json:"frequencies"`
		Magnitudes  []float64 `json:"magnitudes"`
		BinWidth    float64   `json:"bin_width"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))
	require.Len(t, spec.Magnitudes, len(spec.Frequencies))

	peak := 0
	for i, m := range spec.Magnitudes {
		if m > spec.Magnitudes[peak] {
			peak = i
		}
	}
	assert.InDelta(t, 1000, math.Abs(spec.Frequencies[peak]), spec.BinWidth)
}

func TestPlotViews(t *testing.T) {
	ts := newTestServer(t, Options{})
	wav := sineWAV(t, 440, testRate)

	for _, view := range render.Views() {
		t.Run(view, func(t *testing.T) {
			resp := upload(t, ts.URL+"/api/plot/"+view, "tone.wav", wav, nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
			_, err := png.Decode(resp.Body)
			assert.NoError(t, err)
		})
	}

	resp := upload(t, ts.URL+"/api/plot/histogram", "tone.wav", wav, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "unknown view")
}

func TestEffectMessages(t *testing.T) {
	ts := newTestServer(t, Options{})
	wav := sineWAV(t, 440, testRate)

	tests := []struct {
		effect  string
		fields  map[string]string
		message string
		warning bool
	}{
		{"lowpass", map[string]string{"cutoff": "500"}, "Low-pass filter applied successfully!", false},
		{"pitch", map[string]string{"semitones": "3"}, "Pitch shifted by 3 semitones!", false},
		{"stretch", map[string]string{"percent": "150"}, "Time stretched by 150%!", false},
		{"reverb", map[string]string{"amount": "0.3"}, "Reverb applied successfully!", true},
		{"echo", map[string]string{"delay": "0.4", "decay": "0.2"}, "Echo applied successfully!", true},
	}

	for _, tt := range tests {
		t.Run(tt.effect, func(t *testing.T) {
			resp := upload(t, ts.URL+"/api/effects/"+tt.effect, "tone.wav", wav, tt.fields)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.message, resp.Header.Get(HeaderEffectMessage))
			if tt.warning {
				assert.Contains(t, resp.Header.Get(HeaderEffectWarning), "pre-emphasis")
			} else {
				assert.Empty(t, resp.Header.Get(HeaderEffectWarning))
			}

			out := decodeWAVBody(t, resp)
			assert.Equal(t, testRate, out.SampleRate)
		})
	}
}

func TestEffectDefaults(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := upload(t, ts.URL+"/api/effects/stretch", "tone.wav", sineWAV(t, 440, testRate), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Time stretched by 100%!", resp.Header.Get(HeaderEffectMessage))
	assert.Len(t, decodeWAVBody(t, resp).PCM, testRate)
}

func TestTimeStretchHalvesLength(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := upload(t, ts.URL+"/api/effects/stretch", "tone.wav", sineWAV(t, 440, testRate),
		map[string]string{"percent": "200"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeWAVBody(t, resp).PCM, testRate/2)
}

func TestEffectErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	wav := sineWAV(t, 440, testRate)

	tests := []struct {
		name   string
		path   string
		fields map[string]string
	}{
		{"unknown effect", "/api/effects/chorus", nil},
		{"cutoff out of range", "/api/effects/lowpass", map[string]string{"cutoff": "5"}},
		{"cutoff above nyquist", "/api/effects/lowpass", map[string]string{"cutoff": "9000"}},
		{"fractional semitones", "/api/effects/pitch", map[string]string{"semitones": "1.5"}},
		{"non-numeric percent", "/api/effects/stretch", map[string]string{"percent": "fast"}},
		{"decay out of range", "/api/effects/echo", map[string]string{"decay": "0.95"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, ts.URL+tt.path, "tone.wav", wav, tt.fields)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decodeError(t, resp))
		})
	}
}

func TestPlayback(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := upload(t, ts.URL+"/api/playback", "tone.wav", sineWAV(t, 440, testRate), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeWAVBody(t, resp)
	assert.Len(t, out.PCM, testRate)
}

func TestUploadErrors(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadBytes: 4096})

	resp := upload(t, ts.URL+"/api/properties", "notes.txt", []byte("hello"), nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp), "unsupported audio format")

	resp = upload(t, ts.URL+"/api/properties", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL+"/api/properties", "broken.wav", []byte("RIFF not really"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL+"/api/properties", "big.wav", sineWAV(t, 440, testRate), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestAnalysisTimeout(t *testing.T) {
	ts := newTestServer(t, Options{RequestTimeout: 20 * time.Millisecond})
	wav := sineWAV(t, 440, 60*testRate)

	for _, path := range []string{"/api/effects/pitch", "/api/plot/spectrogram"} {
		t.Run(path, func(t *testing.T) {
			resp := upload(t, ts.URL+path, "long.wav", wav, map[string]string{"semitones": "7"})
			assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp), context.DeadlineExceeded.Error())
		})
	}
}

func TestWrongMethod(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/properties")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRequestIDPropagates(t *testing.T) {
	ts := newTestServer(t, Options{})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnsupportedMediaType, statusFor(transcode.ErrUnsupportedFormat))
	assert.Equal(t, http.StatusBadRequest, statusFor(transcode.ErrInvalidAudio))
	assert.Equal(t, http.StatusBadRequest, statusFor(analyzer.ErrInvalidParameter))
	assert.Equal(t, http.StatusBadRequest, statusFor(transcode.ErrDecode))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusTeapot, statusFor(&httpError{status: http.StatusTeapot}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
