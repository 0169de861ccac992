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

package session

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionExists is returned by Manager.CreateClientSession and
// Manager.AcceptServerSession when a session is already open — the
// half-duplex channel beneath a Framer has no way to multiplex, so
// only one Session at a time is ever meaningful.
var ErrSessionExists = errors.New("session: a session already exists on this modem")

// Manager owns the single Session a modem instance may have open at
// once. It exists so the orchestration layer has one place to create,
// fetch, and close the current session rather than threading a
// *Session through every call site.
type Manager struct {
	fr Link

	mu      sync.Mutex
	current *Session
}

// NewManager builds a Manager over fr.
func NewManager(fr Link) *Manager {
	return &Manager{fr: fr}
}

// CreateClientSession creates and connects a new Session as the
// handshake initiator. It fails with ErrSessionExists if a session is
// already open.
func (m *Manager) CreateClientSession() (*Session, error) {
	s, err := m.newSession()
	if err != nil {
		return nil, err
	}
	if err := s.Connect(); err != nil {
		m.clear(s)
		return nil, err
	}
	return s, nil
}

// AcceptServerSession creates a new Session, moves it to LISTEN, and
// waits up to timeout for a peer to complete the handshake. It fails
// with ErrSessionExists if a session is already open.
func (m *Manager) AcceptServerSession(timeout time.Duration) (*Session, error) {
	s, err := m.newSession()
	if err != nil {
		return nil, err
	}
	if err := s.Listen(); err != nil {
		m.clear(s)
		return nil, err
	}
	if err := s.Accept(timeout); err != nil {
		m.clear(s)
		return nil, err
	}
	return s, nil
}

func (m *Manager) newSession() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.State() != Closed {
		return nil, ErrSessionExists
	}
	s := New(m.fr)
	m.current = s
	return s, nil
}

func (m *Manager) clear(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}

// Current returns the modem's session, or nil if none has been
// created.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CloseAll closes the current session, if any. Safe to call when no
// session exists.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
