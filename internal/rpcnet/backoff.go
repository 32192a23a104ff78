package rpcnet

import (
	"math/rand"
	"sync"
	"time"
)

// PeerState is a peer connection's lifecycle state.
type PeerState uint8

const (
	StateDisconnected PeerState = iota
	StateConnecting
	StateConnected
)

// backoffState tracks one peer's reconnect backoff: a mutex-guarded map of
// per-target state tracking exponential-backoff reconnect delay, since the
// grpc streams themselves manage their own underlying connections.
type backoffState struct {
	state   PeerState
	attempt int
	nextAt  time.Time
}

// Backoff tracks reconnect backoff per peer id. Initial delay 1s, cap 30s,
// full jitter.
type Backoff struct {
	mu    sync.Mutex
	peers map[string]*backoffState

	initial time.Duration
	cap     time.Duration
}

// NewBackoff returns a Backoff with the default 1s initial delay and 30s
// cap; pass zero values to accept the defaults.
func NewBackoff(initial, cap_ time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if cap_ <= 0 {
		cap_ = 30 * time.Second
	}
	return &Backoff{peers: make(map[string]*backoffState), initial: initial, cap: cap_}
}

func (b *Backoff) entry(peer string) *backoffState {
	st, ok := b.peers[peer]
	if !ok {
		st = &backoffState{state: StateDisconnected}
		b.peers[peer] = st
	}
	return st
}

// State returns peer's current connection state.
func (b *Backoff) State(peer string) PeerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(peer).state
}

// MarkConnected resets peer's backoff attempt counter.
func (b *Backoff) MarkConnected(peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.entry(peer)
	st.state = StateConnected
	st.attempt = 0
}

// MarkDisconnected records a failed/dropped stream and schedules the next
// reconnect attempt with full jitter: delay = random(0, min(cap, initial *
// 2^attempt)).
func (b *Backoff) MarkDisconnected(peer string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.entry(peer)
	st.state = StateDisconnected
	delay := b.initial << uint(st.attempt)
	if delay > b.cap || delay <= 0 {
		delay = b.cap
	}
	st.attempt++
	jittered := time.Duration(rand.Int63n(int64(delay) + 1))
	st.nextAt = time.Now().Add(jittered)
	return jittered
}

// ReadyToConnect reports whether peer's backoff window has elapsed.
func (b *Backoff) ReadyToConnect(peer string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.entry(peer)
	if st.state == StateConnected {
		return false
	}
	return !time.Now().Before(st.nextAt)
}
