// Package audio generates placeholder audio for the mock session, where no
// real synthesis backend is attached.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	sampleRate     = 16000
	bitsPerSample  = 16
	channels       = 1
	bytesPerSample = bitsPerSample / 8
)

// ToneWAV renders a mono 16 kHz sine tone as a complete WAV file. Volume is
// clamped to [0, 1].
func ToneWAV(durationMS int, frequency, volume float64) []byte {
	if durationMS < 0 {
		durationMS = 0
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	totalSamples := sampleRate * durationMS / 1000
	amplitude := volume * float64(math.MaxInt16)
	pcm := make([]byte, totalSamples*bytesPerSample)
	for i := 0; i < totalSamples; i++ {
		v := amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate)
		binary.LittleEndian.PutUint16(pcm[i*bytesPerSample:], uint16(int16(v)))
	}

	dataSize := len(pcm)
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate*channels*bytesPerSample)
	buf = binary.LittleEndian.AppendUint16(buf, channels*bytesPerSample)
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, pcm...)
	return buf
}
