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

// Package session implements the three-way-handshake connection
// lifecycle (L3b) above the reliable transport: Connect/Listen+Accept
// bring the link to ESTABLISHED, Send/Recv move application data
// across it, and Close/Reset tear it down.
package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gitonair/modem/internal/frame"
	"github.com/gitonair/modem/internal/transport"
)

// Errors mirror the transport layer's: a session is just a state
// machine wrapped around the same ARQ loop.
var (
	ErrLinkFailure = transport.ErrLinkFailure
	ErrPeerReset   = transport.ErrPeerReset
	ErrTimeout     = transport.ErrTimeout
	ErrClosed      = transport.ErrClosed
	ErrPeerClosed  = transport.ErrPeerClosed
)

// Session is connection-oriented byte-stream over a single Framer.
// Only one Session at a time is meaningful per modem instance — the
// half-duplex channel beneath it has no way to multiplex.
type Session struct {
	fr Link
	tr *transport.Transport
	mt *transport.MessageTransport

	mu    sync.Mutex
	state State
}

// New builds a Session over fr, typically a *framer.Framer. The
// session starts CLOSED; callers invoke Connect or Listen+Accept to
// establish it.
func New(fr Link) *Session {
	tr := transport.New(fr)
	return &Session{
		fr:    fr,
		tr:    tr,
		mt:    transport.NewMessage(tr),
		state: Closed,
	}
}

// State reports the session's current position in the handshake state
// machine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Connect performs the initiator side of the three-way handshake:
// send SYN, wait for SYN-ACK, send ACK. It retries the SYN up to
// transport.DefaultRetries times on timeout, matching the ARQ timing
// the rest of the protocol uses.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.state != Closed {
		s.mu.Unlock()
		return errors.New("session: Connect called outside CLOSED state")
	}
	s.mu.Unlock()

	syn, err := frame.New(frame.TypeSyn, 0, nil)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= transport.DefaultRetries; attempt++ {
		if attempt > 0 {
			log.Printf("session: retransmitting SYN (attempt %d/%d)", attempt, transport.DefaultRetries)
		}
		if err := s.fr.Send(syn); err != nil {
			return err
		}
		s.setState(SynSent)
		time.Sleep(transport.TurnaroundGuard)

		reply, err := s.fr.Receive(transport.DefaultTimeout)
		if err != nil {
			continue
		}

		switch reply.Type {
		case frame.TypeSynAck:
			ack, err := frame.New(frame.TypeAck, 0, nil)
			if err != nil {
				return err
			}
			if err := s.fr.Send(ack); err != nil {
				return err
			}
			s.tr.Reset()
			s.setState(Established)
			log.Printf("session: ESTABLISHED (initiator)")
			return nil

		case frame.TypeRst:
			s.setState(Closed)
			return ErrPeerReset

		default:
			continue
		}
	}

	s.setState(Closed)
	return ErrLinkFailure
}

// Listen moves the session into LISTEN, ready for Accept to wait for
// an incoming SYN. Separated from Accept so the responder's
// "accept() → listen (LISTEN)" transition is visible even before a
// peer shows up.
func (s *Session) Listen() error {
	s.mu.Lock()
	if s.state != Closed {
		s.mu.Unlock()
		return errors.New("session: Listen called outside CLOSED state")
	}
	s.mu.Unlock()

	s.setState(Listening)
	return nil
}

// Accept waits up to timeout for a peer's SYN and completes the
// responder side of the handshake: SYN-ACK, then ACK. A sub-handshake
// that times out waiting for the final ACK returns to LISTEN and
// keeps waiting for a (possibly retried) SYN, per the state table's
// "SYN-RECEIVED: timeout → LISTEN".
func (s *Session) Accept(timeout time.Duration) error {
	if s.State() != Listening {
		return errors.New("session: Accept called outside LISTEN state")
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}

		syn, err := s.fr.Receive(remaining)
		if err != nil {
			continue
		}
		if syn.Type != frame.TypeSyn {
			continue
		}
		s.setState(SynReceived)

		if established, err := s.completeHandshake(); established {
			return err
		}
		// Sub-handshake exhausted its attempts without an ACK; go back
		// to waiting for a fresh SYN.
		s.setState(Listening)
	}
}

// completeHandshake sends SYN-ACK and waits for the peer's ACK,
// retrying up to transport.DefaultRetries times. The bool return
// reports whether the session reached ESTABLISHED (or a terminal
// error); false with a nil error means "give up this round, go back
// to LISTEN."
func (s *Session) completeHandshake() (bool, error) {
	synAck, err := frame.New(frame.TypeSynAck, 0, nil)
	if err != nil {
		return true, err
	}

	for attempt := 0; attempt <= transport.DefaultRetries; attempt++ {
		if err := s.fr.Send(synAck); err != nil {
			return true, err
		}
		time.Sleep(transport.TurnaroundGuard)

		reply, err := s.fr.Receive(transport.DefaultTimeout)
		if err != nil {
			continue
		}

		switch reply.Type {
		case frame.TypeAck:
			s.tr.Reset()
			s.setState(Established)
			log.Printf("session: ESTABLISHED (responder)")
			return true, nil
		case frame.TypeRst:
			s.setState(Closed)
			return true, ErrPeerReset
		default:
			continue
		}
	}

	return false, nil
}

// Send moves data across an ESTABLISHED session, fragmenting it over
// as many ARQ frames as needed.
func (s *Session) Send(data []byte) error {
	if s.State() != Established {
		return errors.New("session: Send called outside ESTABLISHED state")
	}
	err := s.mt.SendMessage(data)
	if errors.Is(err, ErrPeerReset) {
		s.setState(Closed)
	}
	return err
}

// Recv waits up to timeout for the next message sent by Send on the
// peer.
func (s *Session) Recv(timeout time.Duration) ([]byte, error) {
	if s.State() != Established {
		return nil, errors.New("session: Recv called outside ESTABLISHED state")
	}
	data, err := s.mt.ReceiveMessage(timeout)
	if errors.Is(err, ErrPeerReset) || errors.Is(err, ErrPeerClosed) {
		s.setState(Closed)
	}
	return data, err
}

// Close gracefully tears down an ESTABLISHED session: send FIN, wait
// (best-effort) for the peer's ACK, then CLOSED regardless of whether
// that ACK arrived. Calling Close on a session that isn't ESTABLISHED
// sends nothing and just sets it CLOSED — closing twice is equivalent
// to closing once.
func (s *Session) Close() error {
	if s.State() != Established {
		s.setState(Closed)
		return nil
	}

	s.setState(FinWait)
	fin, err := frame.New(frame.TypeFin, 0, nil)
	if err != nil {
		return err
	}
	if err := s.fr.Send(fin); err != nil {
		s.setState(Closed)
		return err
	}

	time.Sleep(transport.TurnaroundGuard)
	_, _ = s.fr.Receive(transport.DefaultTimeout) // best-effort; ignore timeout

	s.setState(Closed)
	s.tr.Close()
	return nil
}

// Reset forcibly tears down the session: send RST and return to
// CLOSED immediately, with no handshake to wait for.
func (s *Session) Reset() error {
	rst, err := frame.New(frame.TypeRst, 0, nil)
	if err != nil {
		return err
	}
	err = s.fr.Send(rst)
	s.setState(Closed)
	s.tr.Reset()
	return err
}
