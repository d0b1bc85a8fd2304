package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-spectra/algorithms/filters"
	"github.com/RyanBlaney/sonido-spectra/logging"
	"github.com/RyanBlaney/sonido-spectra/transcode"
)

// Effect names.
const (
	EffectLowPass = "lowpass"
	EffectPitch   = "pitch"
	EffectStretch = "stretch"
	EffectReverb  = "reverb"
	EffectEcho    = "echo"
)

// Effects lists the supported effect names.
func Effects() []string {
	return []string{EffectLowPass, EffectPitch, EffectStretch, EffectReverb, EffectEcho}
}

// Parameter ranges, inclusive.
const (
	MinCutoff    = 20.0
	MaxCutoff    = 10000.0
	MinSemitones = -12
	MaxSemitones = 12
	MinStretch   = 50.0
	MaxStretch   = 200.0
	MinReverb    = 0.0
	MaxReverb    = 1.0
	MinEchoDelay = 0.1
	MaxEchoDelay = 1.0
	MinEchoDecay = 0.1
	MaxEchoDecay = 0.9
)

// EffectParams carries every control value an effect may need. Values not
// used by the requested effect are ignored.
type EffectParams struct {
	Cutoff    float64 `json:"cutoff"`    // Hz
	Semitones int     `json:"semitones"` // pitch steps
	Percent   float64 `json:"percent"`   // time stretch, 100 = unchanged
	Amount    float64 `json:"amount"`    // reverb
	Delay     float64 `json:"delay"`     // echo, seconds
	Decay     float64 `json:"decay"`     // echo
}

// DefaultEffectParams returns the initial control positions.
func DefaultEffectParams() EffectParams {
	return EffectParams{
		Cutoff:    1000,
		Semitones: 0,
		Percent:   100,
		Amount:    0.5,
		Delay:     0.5,
		Decay:     0.5,
	}
}

// EffectResult is a processed buffer plus the user-facing messages.
type EffectResult struct {
	Effect     string    `json:"effect"`
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Message    string    `json:"message"`
	Warning    string    `json:"warning,omitempty"`
}

// Apply runs the named effect on the original buffer.
func (a *Analyzer) Apply(ctx context.Context, effect string, audio *transcode.AudioData, p EffectParams) (*EffectResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch effect {
	case EffectLowPass:
		return a.LowPass(ctx, audio, p.Cutoff)
	case EffectPitch:
		return a.PitchShift(ctx, audio, p.Semitones)
	case EffectStretch:
		return a.TimeStretch(ctx, audio, p.Percent)
	case EffectReverb:
		return a.Reverb(audio, p.Amount)
	case EffectEcho:
		return a.Echo(audio, p.Delay, p.Decay)
	default:
		return nil, fmt.Errorf("%w: unknown effect %q", ErrInvalidParameter, effect)
	}
}

// LowPass applies an order-5 Butterworth low-pass with zero-phase filtering.
func (a *Analyzer) LowPass(ctx context.Context, audio *transcode.AudioData, cutoff float64) (*EffectResult, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	if err := inRange("cutoff", cutoff, MinCutoff, MaxCutoff); err != nil {
		return nil, err
	}

	sos, err := a.backend.DesignLowPass(filters.DefaultButterworthOrder, cutoff, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}

	out, err := a.backend.ApplyFilter(ctx, sos, audio.PCM)
	if err != nil {
		return nil, fmt.Errorf("low-pass failed: %w", err)
	}
	return a.result(EffectLowPass, audio, out,
		"Low-pass filter applied successfully!", ""), nil
}

// PitchShift shifts by a whole number of semitones in [-12, 12].
func (a *Analyzer) PitchShift(ctx context.Context, audio *transcode.AudioData, semitones int) (*EffectResult, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	if semitones < MinSemitones || semitones > MaxSemitones {
		return nil, fmt.Errorf("%w: semitones must be in [%d, %d], got %d",
			ErrInvalidParameter, MinSemitones, MaxSemitones, semitones)
	}

	out, err := a.backend.PitchShift(ctx, audio.PCM, audio.SampleRate, float64(semitones))
	if err != nil {
		return nil, fmt.Errorf("pitch shift failed: %w", err)
	}
	return a.result(EffectPitch, audio, out,
		fmt.Sprintf("Pitch shifted by %d semitones!", semitones), ""), nil
}

// TimeStretch stretches at rate percent/100; percent is in [50, 200].
func (a *Analyzer) TimeStretch(ctx context.Context, audio *transcode.AudioData, percent float64) (*EffectResult, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	if err := inRange("percent", percent, MinStretch, MaxStretch); err != nil {
		return nil, err
	}

	out, err := a.backend.TimeStretch(ctx, audio.PCM, percent/100)
	if err != nil {
		return nil, fmt.Errorf("time stretch failed: %w", err)
	}
	return a.result(EffectStretch, audio, out,
		fmt.Sprintf("Time stretched by %s%%!", formatNumber(percent)), ""), nil
}

// Reverb applies a pre-emphasis filter with coef = amount. It does not add
// any reverberation; the result carries a warning saying so.
func (a *Analyzer) Reverb(audio *transcode.AudioData, amount float64) (*EffectResult, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	if err := inRange("amount", amount, MinReverb, MaxReverb); err != nil {
		return nil, err
	}

	warning := fmt.Sprintf("reverb is a pre-emphasis filter (coef=%s), not a reverberation", formatNumber(amount))
	a.logger.Warn("Reverb implemented as pre-emphasis", logging.Fields{"coef": amount})

	return a.result(EffectReverb, audio, a.backend.PreEmphasis(audio.PCM, amount),
		"Reverb applied successfully!", warning), nil
}

// Echo applies a pre-emphasis filter with coef = delay. decay is validated
// but has no effect on the output.
func (a *Analyzer) Echo(audio *transcode.AudioData, delay, decay float64) (*EffectResult, error) {
	if err := checkAudio(audio); err != nil {
		return nil, err
	}
	if err := inRange("delay", delay, MinEchoDelay, MaxEchoDelay); err != nil {
		return nil, err
	}
	if err := inRange("decay", decay, MinEchoDecay, MaxEchoDecay); err != nil {
		return nil, err
	}

	warning := fmt.Sprintf("echo is a pre-emphasis filter (coef=%s); decay is ignored", formatNumber(delay))
	a.logger.Warn("Echo implemented as pre-emphasis", logging.Fields{
		"coef":  delay,
		"decay": decay,
	})

	return a.result(EffectEcho, audio, a.backend.PreEmphasis(audio.PCM, delay),
		"Echo applied successfully!", warning), nil
}

func (a *Analyzer) result(effect string, audio *transcode.AudioData, samples []float64, message, warning string) *EffectResult {
	a.logger.Info("Effect applied", logging.Fields{
		"effect":         effect,
		"input_samples":  len(audio.PCM),
		"output_samples": len(samples),
	})
	return &EffectResult{
		Effect:     effect,
		Samples:    samples,
		SampleRate: audio.SampleRate,
		Message:    message,
		Warning:    warning,
	}
}

func inRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s must be in [%s, %s], got %v",
			ErrInvalidParameter, name, formatNumber(lo), formatNumber(hi), v)
	}
	return nil
}

// formatNumber prints integers without a fractional part.
func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
