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
	"math"
	"sync"
	"time"
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	simulateRealTiming bool
	playbackAudioData  [][]float32
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:            make(map[string]*MockStream),
		simulateRealTiming: true,
		playbackAudioData:  make([][]float32, 0),
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetSimulateRealTiming controls whether the mock simulates real audio timing
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// GetPlaybackAudioData returns all audio data that was "played back"
func (m *MockAudioBackend) GetPlaybackAudioData() [][]float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]float32, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()

	// Stop all streams first without holding locks
	var streams []StreamInterface
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}

	// Release the lock before calling Stop/Close to avoid deadlocks
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Stop()  // Ignore errors during cleanup
		_ = stream.Close() // Ignore errors during cleanup
	}

	// Re-acquire lock to update state
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	return nil
}

// CreateInputStream creates a mock input stream
func (m *MockAudioBackend) CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}

	streamID := fmt.Sprintf("input_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		isInput:            true,
		simulateRealTiming: m.simulateRealTiming,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}

	streamID := fmt.Sprintf("output_%d", m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		isInput:            false,
		simulateRealTiming: m.simulateRealTiming,
	}

	m.streams[streamID] = stream
	return stream, nil
}

// ListDevices returns a fixed pair of fake devices, enough for a test
// to exercise device-selection code paths without real hardware.
func (m *MockAudioBackend) ListDevices() ([]DeviceInfo, error) {
	return []DeviceInfo{
		{Index: 0, Name: "mock input", MaxInputChans: 1, MaxOutputChans: 0, DefaultSampleHz: NominalSampleRate},
		{Index: 1, Name: "mock output", MaxInputChans: 0, MaxOutputChans: 1, DefaultSampleHz: NominalSampleRate},
	}, nil
}

// CreateInputStreamOnDevice ignores deviceIndex beyond recording it;
// the mock has no real hardware to bind to.
func (m *MockAudioBackend) CreateInputStreamOnDevice(deviceIndex int, sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	stream, err := m.CreateInputStream(sampleRate, channels, bufferSize)
	if err != nil {
		return nil, err
	}
	stream.(*MockStream).deviceIndex = deviceIndex
	return stream, nil
}

// CreateOutputStreamOnDevice ignores deviceIndex beyond recording it;
// the mock has no real hardware to bind to.
func (m *MockAudioBackend) CreateOutputStreamOnDevice(deviceIndex int, sampleRate float64, channels, bufferSize int) (StreamInterface, error) {
	stream, err := m.CreateOutputStream(sampleRate, channels, bufferSize)
	if err != nil {
		return nil, err
	}
	stream.(*MockStream).deviceIndex = deviceIndex
	return stream, nil
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	sampleRate         float64
	channels           int
	bufferSize         int
	isInput            bool
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	writeError         error
	audioDataGenerator func([]float32) // For generating mock audio input
	deviceIndex        int
}

// SetWriteError configures the stream to return an error on Write()
func (m *MockStream) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeError = err
}

// SetAudioDataGenerator sets a function to generate mock audio input data
func (m *MockStream) SetAudioDataGenerator(generator func([]float32)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioDataGenerator = generator
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	m.isOpen = true
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isActive = false
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	if !m.isOpen {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.isOpen = false
	m.isActive = false
	m.mu.Unlock()

	// Remove from backend - use a separate goroutine to avoid deadlock
	go func() {
		m.backend.mu.Lock()
		delete(m.backend.streams, m.id)
		m.backend.mu.Unlock()
	}()

	return nil
}

// Write writes audio data to the mock output stream
func (m *MockStream) Write(data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeError != nil {
		return m.writeError
	}

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if m.isInput {
		return fmt.Errorf("cannot write to input stream")
	}

	// Record the audio data
	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	m.backend.mu.Lock()
	m.backend.playbackAudioData = append(m.backend.playbackAudioData, dataCopy)
	m.backend.mu.Unlock()

	// Simulate real timing if enabled
	if m.simulateRealTiming {
		duration := time.Duration(float64(len(data)) / m.sampleRate * float64(time.Second))
		time.Sleep(duration)
	}

	return nil
}

// Read reads audio data from the mock input stream
func (m *MockStream) Read(data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}

	if !m.isInput {
		return fmt.Errorf("cannot read from output stream")
	}

	// Generate mock audio data
	if m.audioDataGenerator != nil {
		m.audioDataGenerator(data)
	} else {
		// Default: generate a simple sine wave
		for i := range data {
			// 440 Hz sine wave
			t := float64(i) / m.sampleRate
			data[i] = float32(0.1 * math.Sin(2*math.Pi*440*t))
		}
	}

	// Simulate real timing if enabled
	if m.simulateRealTiming {
		duration := time.Duration(float64(len(data)) / m.sampleRate * float64(time.Second))
		time.Sleep(duration)
	}

	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}
