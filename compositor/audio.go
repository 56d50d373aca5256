package compositor

import "time"

// AudioBuffer holds decoded mono PCM samples in the range [-1, 1].
type AudioBuffer struct {
	Data       []float64
	SampleRate int
}

func (b *AudioBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Data)) / float64(b.SampleRate) * float64(time.Second))
}
