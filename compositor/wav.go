package compositor

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Minimal RIFF/WAV handling for the ffmpeg adapter: the adapter always
// normalizes audio to 16-bit little-endian PCM through ffmpeg first, so
// only that layout needs to round-trip here.

func writeWAV(w io.Writer, buf *AudioBuffer) error {
	dataLen := len(buf.Data) * 2
	byteRate := buf.SampleRate * 2

	header := make([]byte, 0, 44)
	header = append(header, []byte("RIFF")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+dataLen))
	header = append(header, []byte("WAVE")...)
	header = append(header, []byte("fmt ")...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, 1) // mono
	header = binary.LittleEndian.AppendUint32(header, uint32(buf.SampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(byteRate))
	header = binary.LittleEndian.AppendUint16(header, 2)  // block align
	header = binary.LittleEndian.AppendUint16(header, 16) // bits per sample
	header = append(header, []byte("data")...)
	header = binary.LittleEndian.AppendUint32(header, uint32(dataLen))
	if _, err := w.Write(header); err != nil {
		return err
	}

	pcm := make([]byte, dataLen)
	for i, s := range buf.Data {
		v := int16(math.Round(math.Max(-1, math.Min(1, s)) * math.MaxInt16))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	_, err := w.Write(pcm)
	return err
}

func decodeWAV(data []byte) (*AudioBuffer, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a wav stream")
	}

	var sampleRate int
	var channels int
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}
		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, fmt.Errorf("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported wav format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("unsupported wav bit depth %d", bits)
			}
		case "data":
			if sampleRate == 0 || channels == 0 {
				return nil, fmt.Errorf("wav data chunk before fmt chunk")
			}
			frames := chunkLen / (2 * channels)
			samples := make([]float64, frames)
			for i := 0; i < frames; i++ {
				// Downmix by averaging channels.
				var sum float64
				for ch := 0; ch < channels; ch++ {
					off := body + (i*channels+ch)*2
					sum += float64(int16(binary.LittleEndian.Uint16(data[off : off+2])))
				}
				samples[i] = sum / float64(channels) / math.MaxInt16
			}
			return &AudioBuffer{Data: samples, SampleRate: sampleRate}, nil
		}
		pos = body + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}
	return nil, fmt.Errorf("wav data chunk not found")
}
