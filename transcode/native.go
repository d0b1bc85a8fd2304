package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/tphakala/flac"
)

// decoded is what a format-specific decoder hands back before downmixing.
type decoded struct {
	interleaved []float64
	sampleRate  int
	channels    int
	bitDepth    int
	codec       string
}

// decodeWAV reads a RIFF/WAVE PCM file with go-audio/wav.
func decodeWAV(data []byte) (*decoded, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("invalid WAV file format")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV data: %w", err)
	}

	bitDepth := int(dec.BitDepth)
	divisor, err := getAudioDivisor(bitDepth)
	if err != nil {
		return nil, err
	}

	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128
		}
		samples[i] = float64(v) / divisor
	}

	return &decoded{
		interleaved: samples,
		sampleRate:  int(dec.SampleRate),
		channels:    int(dec.NumChans),
		bitDepth:    bitDepth,
		codec:       "pcm",
	}, nil
}

// decodeMP3 uses go-mp3, which always yields 16-bit little-endian stereo.
func decodeMP3(data []byte) (*decoded, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}

	return &decoded{
		interleaved: samples,
		sampleRate:  dec.SampleRate(),
		channels:    2,
		bitDepth:    16,
		codec:       "mp3",
	}, nil
}

// decodeFLAC walks every frame of a FLAC stream.
func decodeFLAC(data []byte) (*decoded, error) {
	dec, err := flac.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	bitDepth := dec.BitsPerSample
	divisor, err := getAudioDivisor(bitDepth)
	if err != nil {
		return nil, err
	}
	bytesPerSample := bitDepth / 8

	var samples []float64
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading FLAC frame: %w", err)
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var sample int32
			switch bitDepth {
			case 8:
				sample = int32(int8(frame[i]))
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(frame[i+2])<<16
				if sample&0x800000 != 0 {
					sample |= -1 << 24
				}
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			samples = append(samples, float64(sample)/divisor)
		}
	}

	return &decoded{
		interleaved: samples,
		sampleRate:  dec.SampleRate,
		channels:    dec.NChannels,
		bitDepth:    bitDepth,
		codec:       "flac",
	}, nil
}
