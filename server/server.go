// Package server exposes the analyzer over HTTP. The server keeps no
// per-user state: every request uploads the audio file as the multipart
// field "file" together with the control values it needs.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-spectra/algorithms/filters"
	"github.com/RyanBlaney/sonido-spectra/analyzer"
	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/render"
	"github.com/RyanBlaney/sonido-spectra/transcode"
	"github.com/RyanBlaney/sonido-spectra/web"
)

// Response headers carrying the effect messages.
const (
	HeaderEffectMessage = "X-Effect-Message"
	HeaderEffectWarning = "X-Effect-Warning"
)

// uploadField is the multipart field holding the audio file.
const uploadField = "file"

// Options tunes request handling.
type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// DefaultOptions returns a 50 MB upload limit and a two minute timeout.
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: 50 << 20,
		RequestTimeout: 2 * time.Minute,
	}
}

// Server serves the web page and the JSON/PNG/WAV API.
type Server struct {
	decoder  *transcode.Decoder
	analyzer *analyzer.Analyzer
	renderer *render.Renderer
	opts     Options
	logger   logging.Logger
	mux      *http.ServeMux
}

// New wires a server. Zero option values take the defaults.
func New(dec *transcode.Decoder, a *analyzer.Analyzer, r *render.Renderer, opts Options) *Server {
	defaults := DefaultOptions()
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}

	s := &Server{
		decoder:  dec,
		analyzer: a,
		renderer: r,
		opts:     opts,
		logger:   logging.WithFields(logging.Fields{"component": "http_server"}),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/info", s.handleInfo)

	s.mux.HandleFunc("POST /api/properties", s.handleProperties)
	s.mux.HandleFunc("POST /api/spectrum", s.handleSpectrum)
	s.mux.HandleFunc("POST /api/plot/{view}", s.handlePlot)
	s.mux.HandleFunc("POST /api/effects/{effect}", s.handleEffect)
	s.mux.HandleFunc("POST /api/playback", s.handlePlayback)
}

// Handler returns the routed handler wrapped in the request logger.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.IndexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"formats":          s.decoder.SupportedFormats(),
		"views":            render.Views(),
		"effects":          analyzer.Effects(),
		"defaults":         analyzer.DefaultEffectParams(),
		"backend":          s.analyzer.Backend().Name(),
		"max_upload_bytes": s.opts.MaxUploadBytes,
		"ranges": map[string][2]float64{
			"cutoff":    {analyzer.MinCutoff, analyzer.MaxCutoff},
			"semitones": {analyzer.MinSemitones, analyzer.MaxSemitones},
			"percent":   {analyzer.MinStretch, analyzer.MaxStretch},
			"amount":    {analyzer.MinReverb, analyzer.MaxReverb},
			"delay":     {analyzer.MinEchoDelay, analyzer.MaxEchoDelay},
			"decay":     {analyzer.MinEchoDecay, analyzer.MaxEchoDecay},
		},
	})
}

func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}
	props, err := s.analyzer.Properties(r.Context(), audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}
	spec, err := s.analyzer.Spectrum(r.Context(), audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	// render into a buffer so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := s.renderer.Render(r.Context(), &buf, r.PathValue("view"), s.analyzer, audio); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleEffect(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}

	params, err := parseEffectParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.analyzer.Apply(r.Context(), r.PathValue("effect"), audio, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(HeaderEffectMessage, res.Message)
	if res.Warning != "" {
		w.Header().Set(HeaderEffectWarning, res.Warning)
	}
	s.writeWAV(w, r, res.Samples, res.SampleRate)
}

// handlePlayback returns the decoded mono buffer as WAV.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	audio, ok := s.decodeUpload(w, r)
	if !ok {
		return
	}
	s.writeWAV(w, r, audio.PCM, audio.SampleRate)
}

// decodeUpload reads the multipart file and decodes it, writing the error
// response itself when it fails.
func (s *Server) decodeUpload(w http.ResponseWriter, r *http.Request) (*transcode.AudioData, bool) {
	tooLarge := &httpError{
		status: http.StatusRequestEntityTooLarge,
		msg:    fmt.Sprintf("upload exceeds %d bytes", s.opts.MaxUploadBytes),
	}
	if r.ContentLength > s.opts.MaxUploadBytes {
		s.writeError(w, r, tooLarge)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, tooLarge)
			return nil, false
		}
		s.writeError(w, r, &httpError{status: http.StatusBadRequest,
			msg: fmt.Sprintf("missing %q upload: %v", uploadField, err)})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, &httpError{status: http.StatusBadRequest, msg: "failed to read upload"})
		return nil, false
	}

	audio, err := s.decoder.DecodeBytes(r.Context(), header.Filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return audio, true
}

func (s *Server) writeWAV(w http.ResponseWriter, r *http.Request, samples []float64, sampleRate int) {
	var buf bytes.Buffer
	if err := transcode.EncodeWAV(&buf, samples, sampleRate); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// parseEffectParams reads the control values from the form, falling back to
// the initial control positions for absent fields.
func parseEffectParams(r *http.Request) (analyzer.EffectParams, error) {
	p := analyzer.DefaultEffectParams()

	floatFields := map[string]*float64{
		"cutoff":  &p.Cutoff,
		"percent": &p.Percent,
		"amount":  &p.Amount,
		"delay":   &p.Delay,
		"decay":   &p.Decay,
	}
	for name, dst := range floatFields {
		v := r.FormValue(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: %s must be a number, got %q", analyzer.ErrInvalidParameter, name, v)
		}
		*dst = f
	}

	if v := r.FormValue("semitones"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: semitones must be an integer, got %q", analyzer.ErrInvalidParameter, v)
		}
		p.Semitones = n
	}
	return p, nil
}

// httpError carries an explicit status code.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, transcode.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, analyzer.ErrInvalidParameter),
		errors.Is(err, filters.ErrInvalidCutoff),
		errors.Is(err, transcode.ErrInvalidAudio),
		errors.Is(err, transcode.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := logging.Fields{"status": status}
	logger := s.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error(err, "Request failed", fields)
	} else {
		logger.Warn("Request rejected: "+err.Error(), fields)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
