package whisper

import "encoding/binary"

// decodeSample reads the little-endian int16 at byte offset off and scales
// it to [-1.0, 1.0].
func decodeSample(pcm []byte, off int) float32 {
	return float32(int16(binary.LittleEndian.Uint16(pcm[off:off+2]))) / 32768.0
}

// pcmToFloat32 converts 16-bit signed little-endian PCM to float32 samples
// in [-1.0, 1.0]. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = decodeSample(pcm, i*2)
	}
	return samples
}

// pcmToFloat32Mono down-mixes interleaved multi-channel 16-bit PCM to mono
// float32 by averaging the channels of each frame. channels <= 1 degenerates
// to pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	mono := make([]float32, len(pcm)/(2*channels))
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += decodeSample(pcm, (i*channels+ch)*2)
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
