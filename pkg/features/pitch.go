package features

import "gonum.org/v1/gonum/floats"

// LagBounds returns the inclusive autocorrelation lag range for a pitch
// search between minHz and maxHz: floor(sr/maxHz) .. floor(sr/minHz), with
// the upper bound capped at half the frame length.
func LagBounds(sampleRate, frameLen int, minHz, maxHz float64) (minLag, maxLag int) {
	minLag = int(float64(sampleRate) / maxHz)
	maxLag = int(float64(sampleRate) / minHz)
	maxLag = min(maxLag, frameLen/2)
	minLag = max(minLag, 1)
	return minLag, maxLag
}

// FramePitch estimates the fundamental frequency of one frame by time-domain
// autocorrelation over lags minLag..maxLag.
//
// The correlation at each lag is the mean product over the overlapping
// samples. The chosen lag is the shortest local maximum whose correlation is
// within tolerance of the strongest one; the frame is voiced only if that
// correlation is positive. Unvoiced frames return ok == false.
func FramePitch(frame []float64, sampleRate, minLag, maxLag int, tolerance float64) (hz float64, ok bool) {
	n := len(frame)
	if minLag < 1 || maxLag < minLag || maxLag >= n {
		return 0, false
	}

	corr := make([]float64, maxLag-minLag+1)
	best := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		c := floats.Dot(frame[:n-lag], frame[lag:]) / float64(n-lag)
		corr[lag-minLag] = c
		best = max(best, c)
	}
	if best <= 0 {
		return 0, false
	}

	threshold := best * (1 - tolerance)
	last := len(corr) - 1
	for i, c := range corr {
		if c < threshold {
			continue
		}
		if i > 0 && corr[i-1] > c {
			continue
		}
		if i < last && corr[i+1] > c {
			continue
		}
		return float64(sampleRate) / float64(i+minLag), true
	}
	return 0, false
}
