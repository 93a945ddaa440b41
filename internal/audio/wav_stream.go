package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// WriteWAVHeaderStreaming writes a 44-byte mono 16-bit WAV header whose
// RIFF and data sizes are 0xFFFFFFFF, the conventional marker for a stream
// of unknown length.
func WriteWAVHeaderStreaming(w io.Writer, sampleRate int) (int, error) {
	const (
		channels      = Channels
		bitsPerSample = BitDepth
		blockAlign    = channels * bitsPerSample / 8
	)

	byteRate := uint32(sampleRate) * blockAlign

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 0xFFFFFFFF)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], 0xFFFFFFFF)

	return w.Write(hdr[:])
}

// PCM16 converts samples to little-endian signed 16-bit bytes, clamping to
// [-1, 1].
func PCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*32767)))
	}

	return buf
}

// WritePCM16Samples writes PCM16(samples) to w.
func WritePCM16Samples(w io.Writer, samples []float32) (int, error) {
	return w.Write(PCM16(samples))
}
