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

// Demodulator recovers bytes from a Bell-202-style AFSK waveform. Its
// bandpass/envelope filter coefficients are computed once, at
// construction, and its internal filter state is reset at the start
// of every Demodulate call so successive captured buffers never bleed
// into one another.
type Demodulator struct {
	sampleRate    float64
	samplesPerBit int

	markBandpass  *cascade
	spaceBandpass *cascade
	markEnvelope  *cascade
	spaceEnvelope *cascade
}

// NewDemodulator builds a Demodulator at the Bell-202 defaults.
func NewDemodulator() *Demodulator {
	return &Demodulator{
		sampleRate:    SampleRate,
		samplesPerBit: SamplesPerBit,
		markBandpass:  bandpassCascade(MarkFreq, Bandwidth, SampleRate),
		spaceBandpass: bandpassCascade(SpaceFreq, Bandwidth, SampleRate),
		markEnvelope:  lowpassCascade(BaudRate*1.5, SampleRate),
		spaceEnvelope: lowpassCascade(BaudRate*1.5, SampleRate),
	}
}

// envelopes runs samples through each tone's bandpass filter, then
// full-wave rectifies and lowpass-smooths the result, producing one
// envelope value per input sample for each tone.
func (d *Demodulator) envelopes(samples []float32) (mark, space []float64) {
	d.markBandpass.reset()
	d.spaceBandpass.reset()
	d.markEnvelope.reset()
	d.spaceEnvelope.reset()

	mark = make([]float64, len(samples))
	space = make([]float64, len(samples))

	for i, s := range samples {
		x := float64(s)

		mf := d.markBandpass.process(x)
		mark[i] = d.markEnvelope.process(abs(mf))

		sf := d.spaceBandpass.process(x)
		space[i] = d.spaceEnvelope.process(abs(sf))
	}
	return mark, space
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// findBitBoundary locates the sample index at which bit decisions
// should begin, by finding the strongest rising edge in combined tone
// energy — the onset of the transmitted tone against the silence (or
// noise floor) that preceded it. Everything from this index onward,
// including the preamble's own bits, is handed to the caller; the
// framer's sync scan is what actually discards the preamble bytes.
func findBitBoundary(mark, space []float64) int {
	if len(mark) < 2 {
		return 0
	}

	best := 0
	bestRise := 0.0
	prevTotal := mark[0] + space[0]
	for i := 1; i < len(mark); i++ {
		total := mark[i] + space[i]
		rise := total - prevTotal
		if rise > bestRise {
			bestRise = rise
			best = i
		}
		prevTotal = total
	}
	return best
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// DemodulateBit decides the single bit represented by samples, with
// no bit-timing recovery — used when a caller already knows it is
// looking at exactly one bit-period of audio.
func (d *Demodulator) DemodulateBit(samples []float32) int {
	if len(samples) < d.samplesPerBit/2 {
		return 0
	}
	mark, space := d.envelopes(samples)
	if mean(mark) > mean(space) {
		return 1
	}
	return 0
}

// Demodulate recovers the byte stream carried by samples. It performs
// bit-timing recovery once per call via findBitBoundary, then samples
// bit decisions every samplesPerBit from that anchor, grouping 8 bits
// (LSB first) into each output byte. The filters run over samples
// followed by one bit-period of silence, so the envelope of the final
// bit — delayed by the filters — is still inside the analysed buffer.
// A trailing partial byte (fewer than 8 decided bits) is dropped.
func (d *Demodulator) Demodulate(samples []float32) []byte {
	if len(samples) < d.samplesPerBit*8 {
		return nil
	}

	padded := make([]float32, len(samples)+d.samplesPerBit)
	copy(padded, samples)
	mark, space := d.envelopes(padded)
	start := findBitBoundary(mark, space)

	var bits []int
	for pos := start; pos+d.samplesPerBit <= len(padded); pos += d.samplesPerBit {
		end := pos + d.samplesPerBit
		bit := 0
		if mean(mark[pos:end]) > mean(space[pos:end]) {
			bit = 1
		}
		bits = append(bits, bit)
	}

	out := make([]byte, 0, len(bits)/8)
	for i := 0; i+8 <= len(bits); i += 8 {
		var b byte
		for j := 0; j < 8; j++ {
			b |= byte(bits[i+j]) << uint(j)
		}
		out = append(out, b)
	}
	return out
}
