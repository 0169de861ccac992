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

package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitonair/modem/internal/frame"
)

// fakeLink is a Link that moves frames over a pair of buffered
// channels instead of audio, with hooks to drop or corrupt chosen
// frame types a fixed number of times. Two fakeLinks wired by
// newFakeLinkPair model two ends of the acoustic channel.
type fakeLink struct {
	out chan *frame.Frame
	in  chan *frame.Frame

	mu        sync.Mutex
	dropType  frame.Type
	dropCount int
}

func newFakeLinkPair() (*fakeLink, *fakeLink) {
	ab := make(chan *frame.Frame, 16)
	ba := make(chan *frame.Frame, 16)
	return &fakeLink{out: ab, in: ba}, &fakeLink{out: ba, in: ab}
}

// dropNext arranges for the next n frames of type t sent on this link
// to vanish in transit, modeling a lost ACK or a CRC-failed DATA frame
// (the framer would have silently dropped either before the scanner
// ever surfaced them).
func (f *fakeLink) dropNext(t frame.Type, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropType = t
	f.dropCount = n
}

func (f *fakeLink) Send(fr *frame.Frame) error {
	f.mu.Lock()
	if f.dropType == fr.Type && f.dropCount > 0 {
		f.dropCount--
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	cp := &frame.Frame{Type: fr.Type, Sequence: fr.Sequence, Payload: append([]byte(nil), fr.Payload...)}
	select {
	case f.out <- cp:
	default:
	}
	return nil
}

func (f *fakeLink) Receive(timeout time.Duration) (*frame.Frame, error) {
	select {
	case fr := <-f.in:
		return fr, nil
	case <-time.After(timeout):
		return nil, errors.New("fakeLink: timed out")
	}
}

func TestSendReceiveDeliversPayloadExactlyOnce(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)

	done := make(chan error, 1)
	go func() { done <- sender.Send([]byte("hello over sound")) }()

	got, err := receiver.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello over sound"), got)
	require.NoError(t, <-done)
}

func TestSendSplitsLargeDatagramsIntoFragments(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)

	data := bytes.Repeat([]byte{0x5A}, frame.MaxPayloadSize*2+3)
	done := make(chan error, 1)
	go func() { done <- sender.Send(data) }()

	var got []byte
	for len(got) < len(data) {
		chunk, err := receiver.Receive(time.Second)
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, data, got)
	require.NoError(t, <-done)
}

// TestAckLossRecovery covers spec's scenario 3: the first ACK for a
// DATA frame never arrives, so the sender must retransmit the same
// DATA (same sequence bit) and the receiver must deliver the payload
// exactly once while still re-ACKing the duplicate.
func TestAckLossRecovery(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)
	b.dropNext(frame.TypeAck, 1)

	done := make(chan error, 1)
	go func() { done <- sender.Send([]byte("ack-loss")) }()

	got, err := receiver.Receive(3 * DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, []byte("ack-loss"), got)

	// The receiver must not deliver it twice: a second Receive, long
	// enough to see the sender's retransmission, re-ACKs the duplicate
	// and then times out with nothing further delivered.
	_, err = receiver.Receive(DefaultTimeout + time.Second)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, <-done)
	assert.Equal(t, 1, sender.Stats().Retransmissions)
	assert.Equal(t, 1, sender.Stats().Timeouts)
}

// TestCorruptFrameRecovery covers spec's scenario 4: a single-bit
// flip fails CRC at the framer, which the Link abstraction models as
// the frame vanishing entirely (the scanner never surfaces a
// CRC-failed candidate to anything above it).
func TestCorruptFrameRecovery(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)
	a.dropNext(frame.TypeData, 1)

	done := make(chan error, 1)
	go func() { done <- sender.Send([]byte("corrupt-me")) }()

	got, err := receiver.Receive(3 * DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, []byte("corrupt-me"), got)
	require.NoError(t, <-done)
	assert.Equal(t, 1, sender.Stats().Retransmissions)
}

// TestRetryExhaustionSurfacesLinkFailure covers spec's scenario 5:
// every ACK for one DATA frame is dropped, so the sender must fail
// with ErrLinkFailure after DefaultRetries retransmissions and the
// receiver must never see more than DefaultRetries duplicates.
func TestRetryExhaustionSurfacesLinkFailure(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)
	b.dropNext(frame.TypeAck, DefaultRetries+1)

	var wg sync.WaitGroup
	deliveries := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			_, err := receiver.Receive(DefaultTimeout + time.Second)
			if err != nil {
				return
			}
			deliveries++
		}
	}()

	err := sender.Send([]byte("never-acked"))
	assert.ErrorIs(t, err, ErrLinkFailure)

	wg.Wait()
	assert.LessOrEqual(t, deliveries, 1)
	assert.Equal(t, DefaultRetries, sender.Stats().Retransmissions)
}

func TestReceiveTimesOutWithNothingSent(t *testing.T) {
	_, b := newFakeLinkPair()
	receiver := New(b)
	_, err := receiver.Receive(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestZeroLengthDatagramRoundTrips(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)

	done := make(chan error, 1)
	go func() { done <- sender.Send(nil) }()

	got, err := receiver.Receive(time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, <-done)
}

func TestMaxLengthDatagramRoundTrips(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := New(a)
	receiver := New(b)

	payload := bytes.Repeat([]byte{0x42}, frame.MaxPayloadSize)
	done := make(chan error, 1)
	go func() { done <- sender.Send(payload) }()

	got, err := receiver.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, <-done)
}

func TestMessageTransportRoundTripsAcrossMultipleFragments(t *testing.T) {
	a, b := newFakeLinkPair()
	sender := NewMessage(New(a))
	receiver := NewMessage(New(b))

	message := bytes.Repeat([]byte("acoustic-git-transfer-"), 10)
	done := make(chan error, 1)
	go func() { done <- sender.SendMessage(message) }()

	got, err := receiver.ReceiveMessage(3 * DefaultTimeout)
	require.NoError(t, err)
	assert.Equal(t, message, got)
	require.NoError(t, <-done)
}

func TestSendOnClosedTransportFails(t *testing.T) {
	a, _ := newFakeLinkPair()
	sender := New(a)
	sender.Close()

	err := sender.Send([]byte("too late"))
	assert.ErrorIs(t, err, ErrClosed)
}
