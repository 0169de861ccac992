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

package modem

import (
	"fmt"
	"log"
	"time"

	"github.com/gitonair/modem/internal/audio"
	"github.com/gitonair/modem/internal/framer"
	"github.com/gitonair/modem/internal/session"
)

// Modem owns every layer of the stack — audio device, framer, and
// session manager — behind the one constructor a CLI or a Git
// remote-helper needs to drive a transfer.
type Modem struct {
	backend audio.AudioBackend
	dev     *audio.Device
	fr      *framer.Framer
	sessMgr *session.Manager
}

// New opens the audio device per cfg and wires the stack above it.
// In loopback mode the audio backend is the in-process mock; otherwise
// it is real PortAudio hardware.
func New(cfg Config) (*Modem, error) {
	var backend audio.AudioBackend
	if cfg.Loopback {
		backend = audio.NewMockAudioBackend()
	} else {
		backend = audio.NewPortAudioBackend()
	}

	dev := audio.NewDevice(backend, audio.Config{
		Loopback:     cfg.Loopback,
		Audible:      cfg.Audible,
		InputDevice:  cfg.InputDevice,
		OutputDevice: cfg.OutputDevice,
	})
	if err := dev.Start(); err != nil {
		_ = backend.Terminate()
		return nil, fmt.Errorf("modem: start audio device: %w", err)
	}

	fr := framer.New(dev, cfg.TxVolume)

	log.Printf("🔌 modem: ready (loopback=%v audible=%v)", cfg.Loopback, cfg.Audible)

	return &Modem{
		backend: backend,
		dev:     dev,
		fr:      fr,
		sessMgr: session.NewManager(fr),
	}, nil
}

// Close stops the audio device and releases the backend. Any open
// session is closed first.
func (m *Modem) Close() error {
	if err := m.sessMgr.CloseAll(); err != nil {
		log.Printf("⚠️  modem: error closing session during shutdown: %v", err)
	}
	if err := m.dev.Stop(); err != nil {
		log.Printf("⚠️  modem: error stopping audio device: %v", err)
	}
	return m.backend.Terminate()
}

// Connect opens a new session as the handshake initiator.
func (m *Modem) Connect() (*session.Session, error) {
	log.Printf("🤝 modem: connecting (initiator)")
	s, err := m.sessMgr.CreateClientSession()
	if err != nil {
		return nil, fmt.Errorf("modem: connect: %w", err)
	}
	return s, nil
}

// Accept waits for a peer's connection as the handshake responder.
func (m *Modem) Accept(timeout time.Duration) (*session.Session, error) {
	log.Printf("🤝 modem: waiting for a peer to connect")
	s, err := m.sessMgr.AcceptServerSession(timeout)
	if err != nil {
		return nil, fmt.Errorf("modem: accept: %w", err)
	}
	return s, nil
}

// ListDevices passes through to the audio backend's device
// enumeration, letting a CLI present input_device/output_device
// choices to a human. Not part of the protocol itself.
func (m *Modem) ListDevices() ([]audio.DeviceInfo, error) {
	return m.dev.ListDevices()
}
