// Package audio converts telephony G.711 audio for the batch transcription
// path. All functions are pure and stateless.
package audio

import "encoding/binary"

// DecodeULawSample expands one G.711 mu-law byte to a linear PCM16 sample.
func DecodeULawSample(u byte) int16 {
	u = ^u
	t := (int16(u&0x0F) << 3) + 0x84
	t <<= (u & 0x70) >> 4
	if u&0x80 != 0 {
		return 0x84 - t
	}
	return t - 0x84
}

// DecodeULaw expands a mu-law byte stream to little-endian PCM16.
func DecodeULaw(in []byte) []byte {
	out := make([]byte, len(in)*2)
	for i, u := range in {
		s := DecodeULawSample(u)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// WAV wraps raw little-endian PCM16 in a RIFF/WAVE container.
func WAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 44+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}
