package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNotWAV is returned when a file is not a RIFF/WAVE container.
var ErrNotWAV = errors.New("capture: not a valid WAV file")

// WAVFormat describes the PCM layout of a WAV file.
type WAVFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataSize      uint32
}

// BytesPerSecond is the PCM byte rate of the format.
func (f WAVFormat) BytesPerSecond() int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
}

// ReadWAVHeader reads the RIFF header and chunks up to the start of the
// "data" chunk, leaving r positioned at the first sample. Only uncompressed
// PCM is accepted.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVFormat{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVFormat{}, ErrNotWAV
	}

	var (
		format  WAVFormat
		haveFmt bool
		chunk   [8]byte
	)
	for {
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return WAVFormat{}, fmt.Errorf("read WAV chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVFormat{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVFormat{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			format.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			format.Channels = binary.LittleEndian.Uint16(body[2:4])
			format.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			format.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return WAVFormat{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			if format.AudioFormat != 1 {
				return WAVFormat{}, fmt.Errorf("only PCM format supported, got %d", format.AudioFormat)
			}
			format.DataSize = size
			return format, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size+size%2)); err != nil {
				return WAVFormat{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// WriteWAVHeader writes a canonical 44-byte PCM header for dataSize bytes of samples.
func WriteWAVHeader(w io.Writer, f WAVFormat, dataSize uint32) error {
	blockAlign := f.Channels * f.BitsPerSample / 8
	var h [44]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1)
	binary.LittleEndian.PutUint16(h[22:24], f.Channels)
	binary.LittleEndian.PutUint32(h[24:28], f.SampleRate)
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], f.BitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)
	_, err := w.Write(h[:])
	return err
}
