/*
 * This file is part of gitonair, an acoustic modem for transferring
 * Git repositories over sound.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package afsk

import "math"

// biquad is a single second-order IIR section in transposed Direct
// Form II, holding its own running state so repeated calls to
// process filter a stream incrementally.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

func (f *biquad) reset() {
	f.z1, f.z2 = 0, 0
}

// cascade chains two biquad sections for a steeper, 4-pole-equivalent
// rolloff — the same order scipy's butter(4, ...) produces in the
// Python prototype this package is grounded on, though the pole
// placement here is the standard RBJ constant-0-dB-peak-gain bandpass
// rather than scipy's maximally-flat Butterworth polynomial. Good
// enough for envelope comparison, which is all a bit decision needs.
type cascade struct {
	stages [2]biquad
}

func (c *cascade) process(x float64) float64 {
	for i := range c.stages {
		x = c.stages[i].process(x)
	}
	return x
}

func (c *cascade) reset() {
	for i := range c.stages {
		c.stages[i].reset()
	}
}

// bandpassCascade designs a two-section constant-0-dB-peak-gain
// bandpass centered at centerFreq, per the Audio-EQ-Cookbook biquad
// formulas. Both sections are identical with Q = centerFreq/bandwidth,
// so bandwidth is the width of one section; the cascade is narrower.
func bandpassCascade(centerFreq, bandwidth, sampleRate float64) *cascade {
	q := centerFreq / bandwidth
	section := bandpassSection(centerFreq, q, sampleRate)
	return &cascade{stages: [2]biquad{section, section}}
}

func bandpassSection(freq, q, sampleRate float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return biquad{
		b0: alpha / a0,
		b1: 0,
		b2: -alpha / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}

// lowpassCascade designs a two-section Butterworth-Q lowpass used for
// envelope smoothing after rectification.
func lowpassCascade(cutoff, sampleRate float64) *cascade {
	const butterworthQ = 0.7071067811865476 // 1/sqrt(2)
	section := lowpassSection(cutoff, butterworthQ, sampleRate)
	return &cascade{stages: [2]biquad{section, section}}
}

func lowpassSection(freq, q, sampleRate float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	b1 := 1 - cosW0
	return biquad{
		b0: (b1 / 2) / a0,
		b1: b1 / a0,
		b2: (b1 / 2) / a0,
		a1: (-2 * cosW0) / a0,
		a2: (1 - alpha) / a0,
	}
}
