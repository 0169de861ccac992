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

// Package transport implements Stop-and-Wait ARQ (L3) over the
// framer: one unacknowledged frame at a time, an alternating
// sequence bit, and bounded retransmission on loss or corruption.
package transport

import (
	"log"
	"sync"
	"time"

	"github.com/gitonair/modem/internal/frame"
)

const (
	// DefaultTimeout is how long a sender waits for an ACK before
	// retransmitting.
	DefaultTimeout = 5 * time.Second

	// DefaultRetries is how many times a frame is retransmitted after
	// its first transmission before the send fails with ErrLinkFailure.
	DefaultRetries = 5

	// TurnaroundGuard is the pause after sending a frame that expects a
	// response, giving the peer time to pivot from receive to transmit
	// before this side starts listening. The inverse pivot is handled
	// by the audio layer's echo guard.
	TurnaroundGuard = 50 * time.Millisecond
)

// Transport carries a single reliable byte stream over a Link, one
// ≤64-byte fragment at a time. It holds the alternating sequence bit
// for each direction and the peer is assumed to do the same on its
// side — Stop-and-Wait never needs more than one bit of sequence
// space because only one frame is ever unacknowledged at a time.
type Transport struct {
	link Link

	mu     sync.Mutex
	txSeq  uint8
	rxSeq  uint8
	closed bool
	stats  Stats
}

// New wraps link in a Transport. link is typically a *framer.Framer;
// tests substitute a fault-injecting fake.
func New(link Link) *Transport {
	return &Transport{link: link}
}

// Stats returns a snapshot of the transport's lifetime counters.
func (t *Transport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Send fragments data into ≤64-byte segments and carries each one
// across the link with Stop-and-Wait ARQ in turn. A fragment failing
// with ErrLinkFailure or ErrPeerReset aborts the whole send — the
// caller has no way to know how much of data the peer already
// received, matching spec's "fail with LinkFailure" terminal outcome.
func (t *Transport) Send(data []byte) error {
	for _, fragment := range splitFragments(data) {
		if err := t.sendFragment(fragment); err != nil {
			return err
		}
	}
	return nil
}

// splitFragments divides data into chunks of at most
// frame.MaxPayloadSize bytes. A nil/empty datagram still produces one
// (empty) fragment so a zero-length datagram round-trips correctly.
func splitFragments(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{nil}
	}
	var out [][]byte
	for len(data) > 0 {
		n := len(data)
		if n > frame.MaxPayloadSize {
			n = frame.MaxPayloadSize
		}
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

func (t *Transport) sendFragment(payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	seq := t.txSeq
	t.mu.Unlock()

	f, err := frame.New(frame.TypeData, seq, payload)
	if err != nil {
		return err
	}

	for attempt := 0; attempt <= DefaultRetries; attempt++ {
		if attempt > 0 {
			t.mu.Lock()
			t.stats.Retransmissions++
			t.mu.Unlock()
			log.Printf("transport: retransmitting DATA seq=%d (attempt %d/%d)", seq, attempt, DefaultRetries)
		}

		if err := t.link.Send(f); err != nil {
			return err
		}
		t.mu.Lock()
		t.stats.FramesSent++
		t.mu.Unlock()

		time.Sleep(TurnaroundGuard)

		reply, err := t.link.Receive(DefaultTimeout)
		if err != nil {
			t.mu.Lock()
			t.stats.Timeouts++
			t.mu.Unlock()
			continue
		}

		t.mu.Lock()
		t.stats.FramesReceived++
		t.mu.Unlock()

		switch reply.Type {
		case frame.TypeAck:
			if reply.Sequence != seq {
				// Stale ACK for a previous fragment; keep waiting on
				// this attempt's window by retrying the send.
				continue
			}
			t.mu.Lock()
			t.stats.AcksReceived++
			t.txSeq ^= 1
			t.mu.Unlock()
			return nil

		case frame.TypeNak:
			t.mu.Lock()
			t.stats.NaksReceived++
			t.mu.Unlock()
			continue

		case frame.TypeRst:
			return ErrPeerReset

		default:
			// Anything else (e.g. a stray DATA from the peer's own
			// send racing ours) doesn't answer this attempt; retry.
			continue
		}
	}

	return ErrLinkFailure
}

// Receive waits up to timeout for the next DATA fragment, ACKing it
// before returning. A duplicate of the last delivered fragment is
// re-ACKed but not redelivered, so a lost ACK never wedges the
// sender and the application never observes it twice.
func (t *Transport) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		f, err := t.link.Receive(remaining)
		if err != nil {
			continue
		}

		t.mu.Lock()
		t.stats.FramesReceived++
		t.mu.Unlock()

		if f.Type == frame.TypeRst {
			return nil, ErrPeerReset
		}
		if f.Type == frame.TypeFin {
			ack, err := frame.New(frame.TypeAck, f.Sequence, nil)
			if err != nil {
				return nil, err
			}
			_ = t.sendControl(ack)
			return nil, ErrPeerClosed
		}
		if f.Type != frame.TypeData {
			continue
		}

		t.mu.Lock()
		expected := t.rxSeq
		t.mu.Unlock()

		ack, err := frame.New(frame.TypeAck, f.Sequence, nil)
		if err != nil {
			return nil, err
		}

		if f.Sequence != expected {
			// Duplicate of the frame we already delivered: re-ACK,
			// don't redeliver.
			_ = t.sendControl(ack)
			continue
		}

		if err := t.sendControl(ack); err != nil {
			return nil, err
		}

		t.mu.Lock()
		t.rxSeq ^= 1
		t.mu.Unlock()

		return f.Payload, nil
	}
}

func (t *Transport) sendControl(f *frame.Frame) error {
	if err := t.link.Send(f); err != nil {
		return err
	}
	t.mu.Lock()
	t.stats.FramesSent++
	t.mu.Unlock()
	return nil
}

// Close marks the transport unusable for further Send calls. It does
// not touch the underlying link — the session layer owns FIN/RST
// framing, since those are connection-lifecycle concerns above L3.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Reset clears the sequence state and statistics, and reopens a
// transport that Close marked closed. The session layer calls this
// after every successful (re-)handshake, so a fresh connection never
// inherits sequence state from a previous one.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.txSeq = 0
	t.rxSeq = 0
	t.closed = false
	t.stats = Stats{}
}
