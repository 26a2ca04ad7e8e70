package local

import (
	"context"
	"sync"
)

// LocalMessage is one in-process pub/sub delivery.
type LocalMessage struct {
	Channel string
	Payload string
}

type sub struct {
	ch chan *LocalMessage
}

// LocalPubSub fans published messages out to per-subscriber buffered
// channels. It backs session event broadcast when no Redis is
// configured, so it follows the coordinator's delivery rules: a
// stalled subscriber drops messages, and subscribing or unsubscribing
// never disturbs a publish already in flight.
type LocalPubSub struct {
	mu     sync.RWMutex
	topics map[string][]*sub
	buf    int
}

// NewPubSub creates a LocalPubSub whose subscribers each get a
// delivery channel buffered to buf messages.
func NewPubSub(buf int) *LocalPubSub {
	if buf <= 0 {
		buf = 256
	}
	return &LocalPubSub{topics: make(map[string][]*sub), buf: buf}
}

// Publish delivers message to every current subscriber of channel.
// The read lock stays held across the sends: cancel closes subscriber
// channels under the write lock, so a concurrent unsubscribe cannot
// close a channel between the snapshot and the send and panic the
// publisher.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, s := range ps.topics[channel] {
		select {
		case s.ch <- msg:
		default:
			// Full buffer means a stalled subscriber; drop, never block.
		}
	}
	return nil
}

// Subscribe registers one buffered delivery channel for all the given
// pub/sub channels. The returned cancel removes the registration and
// closes the delivery channel; calling it more than once is safe.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.buf)
	s := &sub{ch: ch}

	ps.mu.Lock()
	for _, c := range channels {
		ps.topics[c] = append(ps.topics[c], s)
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, c := range channels {
				list := ps.topics[c]
				for i, registered := range list {
					if registered == s {
						ps.topics[c] = append(list[:i], list[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
