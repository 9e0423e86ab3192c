package processor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// Load decodes an audio file into normalized mono samples in [-1, 1].
// The decoder is chosen by file extension; anything without a recognized
// extension is treated as WAV.
func (p *Processor) Load(path string) ([]float64, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return loadMP3(path)
	case ".flac":
		return loadFLAC(path)
	case ".ogg", ".oga":
		return loadOgg(path)
	default:
		return loadWAV(path)
	}
}

func loadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil || buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		// go-audio rejects some technically valid RIFF layouts; fall back
		// to a minimal chunk walker before giving up.
		if samples, rate, rawErr := loadRawWAV(path); rawErr == nil {
			return samples, rate, nil
		}
		if err == nil {
			err = fmt.Errorf("empty pcm buffer")
		}
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	bits := int(dec.BitDepth)
	if bits == 0 {
		bits = 16
	}
	scale := float64(int64(1) << (bits - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return samples, buf.Format.SampleRate, nil
}

// loadRawWAV walks RIFF chunks by hand and reads PCM frames directly.
// Supports 8-bit unsigned and 16/32-bit signed little-endian PCM.
func loadRawWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a riff wave file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
	)
	for {
		chunk := make([]byte, 8)
		if _, err := io.ReadFull(f, chunk); err != nil {
			break
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			fmtData := make([]byte, size)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtData[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
		default:
			// Chunks are word-aligned.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skip chunk %s: %w", id, err)
			}
		}
		if data != nil && sampleRate != 0 {
			break
		}
	}

	if data == nil || channels < 1 || sampleRate < 1 {
		return nil, 0, fmt.Errorf("incomplete wave file")
	}

	bytesPer := bits / 8
	if bytesPer < 1 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d", bits)
	}
	frames := len(data) / (bytesPer * channels)
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPer
			var v float64
			switch bits {
			case 8:
				v = (float64(data[off]) - 128) / 128
			case 16:
				v = float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
			case 32:
				v = float64(int32(binary.LittleEndian.Uint32(data[off:]))) / 2147483648
			default:
				return nil, 0, fmt.Errorf("unsupported bit depth %d", bits)
			}
			sum += v
		}
		samples[i] = sum / float64(channels)
	}
	return samples, sampleRate, nil
}

func loadMP3(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open mp3: %w", err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("read mp3 pcm: %w", err)
	}

	frames := len(pcm) / 4
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		l := float64(int16(binary.LittleEndian.Uint16(pcm[i*4:]))) / 32768
		r := float64(int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))) / 32768
		samples[i] = (l + r) / 2
	}
	return samples, dec.SampleRate(), nil
}

func loadFLAC(path string) ([]float64, int, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	if channels < 1 {
		channels = 1
	}
	scale := float64(int64(1) << (stream.Info.BitsPerSample - 1))

	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode flac frame: %w", err)
		}

		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			sum := 0.0
			for c := 0; c < channels; c++ {
				sum += float64(frame.Subframes[c].Samples[i]) / scale
			}
			samples = append(samples, sum/float64(channels))
		}
	}
	return samples, int(stream.Info.SampleRate), nil
}

func loadOgg(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open ogg: %w", err)
	}
	defer f.Close()

	pcm, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, 0, fmt.Errorf("decode ogg: %w", err)
	}

	channels := format.Channels
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(pcm[i*channels+c])
		}
		samples[i] = sum / float64(channels)
	}
	return samples, format.SampleRate, nil
}

// EncodeWAV writes mono samples as 16-bit PCM WAV. Samples are clamped to
// [-1, 1] before quantization.
func EncodeWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, s))
		buf.Data[i] = int(math.Round(v * 32767))
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
