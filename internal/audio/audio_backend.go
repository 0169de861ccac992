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

// AudioBackend provides an abstraction layer for audio operations
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// CreateInputStream creates an input stream for recording
	CreateInputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)

	// CreateOutputStream creates an output stream for playback
	CreateOutputStream(sampleRate float64, channels, bufferSize int) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream
	Stop() error

	// Close the audio stream and release resources
	Close() error

	// Write audio data to output stream
	Write(data []float32) error

	// Read audio data from input stream
	Read(data []float32) error

	// IsActive returns true if the stream is currently active
	IsActive() bool
}

// DeviceInfo describes one audio device known to a backend, mirroring
// the fields a caller needs to pick an input/output device by index.
type DeviceInfo struct {
	Index           int
	Name            string
	MaxInputChans   int
	MaxOutputChans  int
	DefaultSampleHz float64
}

// DeviceLister is implemented by backends that can enumerate hardware
// devices. MockAudioBackend and PortAudioBackend both implement it;
// Device.ListDevices uses it to satisfy list_audio_devices-style
// discovery without widening the core AudioBackend interface.
type DeviceLister interface {
	ListDevices() ([]DeviceInfo, error)
}

// DeviceSelector is implemented by backends that support opening a
// stream on a specific device index rather than the system default.
// Device falls back to CreateInputStream/CreateOutputStream when a
// backend doesn't implement this or when no device index was
// requested.
type DeviceSelector interface {
	CreateInputStreamOnDevice(deviceIndex int, sampleRate float64, channels, bufferSize int) (StreamInterface, error)
	CreateOutputStreamOnDevice(deviceIndex int, sampleRate float64, channels, bufferSize int) (StreamInterface, error)
}