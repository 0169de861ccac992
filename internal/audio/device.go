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

package audio

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// NominalSampleRate is the sample rate the layers above the Device
// work at. Streams are opened at Config.SampleRate; when that differs,
// captured audio is resampled to this rate on its way out of
// ReceiveUntilSilence. Play writes its samples to the output stream
// unconverted.
const NominalSampleRate = 48000

// Defaults for ReceiveUntilSilence.
const (
	DefaultMinSamples      = 10000 // ~200ms at 48kHz
	DefaultSilenceDuration = 300 * time.Millisecond
	DefaultEchoGuard       = 80 * time.Millisecond
	defaultSilenceRMS      = 0.01
	blockSize              = 1024
)

// Config controls how a Device is constructed. Zero value is usable:
// it opens the default input/output device at NominalSampleRate with
// no loopback.
type Config struct {
	Loopback     bool
	Audible      bool
	InputDevice  int // -1 or 0 means "default"
	OutputDevice int
	SampleRate   float64 // 0 means NominalSampleRate
	EchoGuard    time.Duration
}

// Device is the sole owner of the audio hardware: it is the only
// component permitted to touch an AudioBackend directly. Every other
// layer interacts with audio exclusively through Device's methods.
type Device struct {
	backend AudioBackend
	cfg     Config

	inStream  StreamInterface
	outStream StreamInterface

	sampleRate float64 // Config.SampleRate the streams were opened at, used to resample capture

	transmitting atomic.Bool

	mu         sync.Mutex
	lastTxEnd  time.Time
	rxChunks   [][]float32
	running    bool
	captureErr error

	stopCapture chan struct{}
	captureDone chan struct{}

	// loopback delivers Play's samples straight to Receive, bypassing
	// the backend entirely.
	loopback  chan []float32
	echoGuard time.Duration
}

// NewDevice constructs a Device over backend with cfg. It does not
// open any streams yet — call Start for that.
func NewDevice(backend AudioBackend, cfg Config) *Device {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = NominalSampleRate
	}
	echoGuard := cfg.EchoGuard
	if echoGuard == 0 {
		echoGuard = DefaultEchoGuard
	}
	return &Device{
		backend:   backend,
		cfg:       cfg,
		echoGuard: echoGuard,
		loopback:  make(chan []float32, 64),
	}
}

// Start opens the underlying streams (or, in loopback mode, does
// nothing but mark the device running).
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	if d.cfg.Loopback {
		d.running = true
		return nil
	}

	if err := d.backend.Initialize(); err != nil {
		return fmt.Errorf("audio: failed to initialize backend: %w", err)
	}

	in, err := d.openInputStream()
	if err != nil {
		return fmt.Errorf("audio: failed to open input stream: %w", err)
	}
	out, err := d.openOutputStream()
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("audio: failed to open output stream: %w", err)
	}

	if err := in.Start(); err != nil {
		_ = in.Close()
		_ = out.Close()
		return fmt.Errorf("audio: failed to start input stream: %w", err)
	}
	if err := out.Start(); err != nil {
		_ = in.Stop()
		_ = in.Close()
		_ = out.Close()
		return fmt.Errorf("audio: failed to start output stream: %w", err)
	}

	d.inStream = in
	d.outStream = out
	d.sampleRate = d.cfg.SampleRate
	d.running = true

	d.stopCapture = make(chan struct{})
	d.captureDone = make(chan struct{})
	go d.captureLoop()

	return nil
}

func (d *Device) openInputStream() (StreamInterface, error) {
	if d.cfg.InputDevice > 0 {
		if selector, ok := d.backend.(DeviceSelector); ok {
			return selector.CreateInputStreamOnDevice(d.cfg.InputDevice, d.cfg.SampleRate, 1, blockSize)
		}
	}
	return d.backend.CreateInputStream(d.cfg.SampleRate, 1, blockSize)
}

func (d *Device) openOutputStream() (StreamInterface, error) {
	if d.cfg.OutputDevice > 0 {
		if selector, ok := d.backend.(DeviceSelector); ok {
			return selector.CreateOutputStreamOnDevice(d.cfg.OutputDevice, d.cfg.SampleRate, 1, blockSize)
		}
	}
	return d.backend.CreateOutputStream(d.cfg.SampleRate, 1, blockSize)
}

// ListDevices enumerates the audio devices visible to the underlying
// backend, for use by a CLI's --list-devices flag. It returns an error
// if the backend does not support enumeration.
func (d *Device) ListDevices() ([]DeviceInfo, error) {
	lister, ok := d.backend.(DeviceLister)
	if !ok {
		return nil, fmt.Errorf("audio: backend does not support device enumeration")
	}
	return lister.ListDevices()
}

// Stop closes the underlying streams. Safe to call more than once.
func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stop := d.stopCapture
	done := d.captureDone
	in, out := d.inStream, d.outStream
	d.inStream, d.outStream = nil, nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	var firstErr error
	if in != nil {
		if err := in.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := in.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if out != nil {
		if err := out.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LastCaptureError returns the most recent transient error the
// background capture goroutine logged, or nil if none occurred since
// the last call. Capture errors never stop the device; they are
// surfaced here purely for diagnostics.
func (d *Device) LastCaptureError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.captureErr
	d.captureErr = nil
	return err
}

// IsTransmitting reports whether Play is currently in progress.
func (d *Device) IsTransmitting() bool {
	return d.transmitting.Load()
}

// ClearReceiveBuffer discards any captured samples not yet consumed.
// It only touches the real-hardware capture path (rxChunks): the
// loopback channel is Play's direct handoff to ReceiveUntilSilence in
// loopback mode, and Play itself calls this both before and after
// transmitting, so draining it here would throw away the very samples
// just enqueued.
func (d *Device) ClearReceiveBuffer() {
	d.mu.Lock()
	d.rxChunks = nil
	d.mu.Unlock()
}

// Play transmits samples and blocks until the device has drained them.
// Transmit gating (§4.1): the receive path is cleared before and after
// playback, and the echo guard begins counting from the moment Play
// returns.
func (d *Device) Play(samples []float32) error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return fmt.Errorf("audio: device not started")
	}

	d.transmitting.Store(true)
	d.ClearReceiveBuffer()

	defer func() {
		d.transmitting.Store(false)
		d.mu.Lock()
		d.lastTxEnd = time.Now()
		d.mu.Unlock()
		d.ClearReceiveBuffer()
	}()

	if d.cfg.Loopback {
		cp := make([]float32, len(samples))
		copy(cp, samples)
		select {
		case d.loopback <- cp:
		default:
			log.Printf("⚠️ audio: loopback buffer full, dropping %d samples", len(cp))
		}
		if d.cfg.Audible {
			return d.playAudible(samples)
		}
		return nil
	}

	return d.playAudible(samples)
}

func (d *Device) playAudible(samples []float32) error {
	d.mu.Lock()
	out := d.outStream
	d.mu.Unlock()
	if out == nil {
		return fmt.Errorf("audio: output stream not open")
	}

	buf := make([]float32, blockSize)
	for offset := 0; offset < len(samples); offset += blockSize {
		end := offset + blockSize
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(buf, samples[offset:end])
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := out.Write(buf); err != nil {
			return fmt.Errorf("audio: write underrun or device error (non-fatal, frame will be retransmitted): %w", err)
		}
	}
	return nil
}

// captureLoop is the dedicated background worker that owns the input
// stream; it never blocks on anything but the stream's own Read, and
// it never calls into protocol layers — it only appends to the ring
// buffer. Polling Read in a loop rather than registering a callback
// keeps the capture path testable with the same StreamInterface a
// real backend and the mock both implement.
func (d *Device) captureLoop() {
	defer close(d.captureDone)

	buf := make([]float32, blockSize)
	for {
		select {
		case <-d.stopCapture:
			return
		default:
		}

		d.mu.Lock()
		in := d.inStream
		d.mu.Unlock()
		if in == nil {
			return
		}

		if err := in.Read(buf); err != nil {
			// Transient audio glitches are logged, never fatal (§4.1).
			log.Printf("⚠️ audio: capture read error: %v", err)
			d.mu.Lock()
			d.captureErr = err
			d.mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			continue
		}

		if d.transmitting.Load() {
			continue // transmit gating: self-capture never reaches the buffer
		}
		d.mu.Lock()
		sinceTx := time.Since(d.lastTxEnd)
		echoGuard := d.echoGuard
		d.mu.Unlock()
		if sinceTx < echoGuard {
			continue // echo guard
		}

		cp := make([]float32, len(buf))
		copy(cp, buf)
		d.mu.Lock()
		d.rxChunks = append(d.rxChunks, cp)
		d.mu.Unlock()
	}
}

func (d *Device) drainChunks() []float32 {
	d.mu.Lock()
	chunks := d.rxChunks
	d.rxChunks = nil
	d.mu.Unlock()

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// ReceiveUntilSilence collects captured samples until at least
// minSamples have arrived and the trailing silenceDuration worth of
// audio is below threshold, or until timeout elapses.
func (d *Device) ReceiveUntilSilence(timeout time.Duration, minSamples int, silenceDuration time.Duration) []float32 {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if silenceDuration <= 0 {
		silenceDuration = DefaultSilenceDuration
	}

	if d.cfg.Loopback {
		return d.receiveLoopback(timeout)
	}

	deadline := time.Now().Add(timeout)
	var collected []float32
	silenceSamples := int(silenceDuration.Seconds() * d.rate())

	poll := 20 * time.Millisecond
	for time.Now().Before(deadline) {
		time.Sleep(poll)
		collected = append(collected, d.drainChunks()...)

		if len(collected) >= minSamples && len(collected) >= silenceSamples {
			tail := collected[len(collected)-silenceSamples:]
			if rms(tail) < defaultSilenceRMS {
				break
			}
		}
	}

	return d.resample(collected)
}

func (d *Device) receiveLoopback(timeout time.Duration) []float32 {
	select {
	case samples := <-d.loopback:
		return samples
	case <-time.After(timeout):
		return nil
	}
}

func (d *Device) rate() float64 {
	if d.sampleRate > 0 {
		return d.sampleRate
	}
	return NominalSampleRate
}

// resample linearly interpolates samples captured at the device's
// native rate to NominalSampleRate, so every layer above Device can
// assume 48kHz regardless of what hardware is attached.
func (d *Device) resample(samples []float32) []float32 {
	native := d.rate()
	if d.cfg.Loopback || native == NominalSampleRate || len(samples) == 0 {
		return samples
	}

	ratio := NominalSampleRate / native
	outLen := int(float64(len(samples)) * ratio)
	out := make([]float32, outLen)
	for i := range out {
		srcPos := float64(i) / ratio
		lo := int(math.Floor(srcPos))
		frac := srcPos - float64(lo)
		hi := lo + 1
		if hi >= len(samples) {
			hi = len(samples) - 1
		}
		if lo >= len(samples) {
			lo = len(samples) - 1
		}
		out[i] = samples[lo] + float32(frac)*(samples[hi]-samples[lo])
	}
	return out
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
