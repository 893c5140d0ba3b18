package voice

import "math"

// level normalizes the energy of one frame of 16-bit samples to a 0-100
// scale using RMS.
func level(samples []int16) int {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	n := int(rms * 100)
	if n > 100 {
		n = 100
	}
	return n
}

// runMeter consumes per-frame levels and publishes them into state. The
// channel is buffered with capacity one and written non-blockingly by the
// capture pump, so frames are dropped rather than queued under load;
// staleness is acceptable. The loop self-terminates when the pump closes
// the channel.
func (m *Manager) runMeter(levels <-chan int) {
	for v := range levels {
		m.setVolume(v)
	}
}
