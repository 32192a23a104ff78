package rpcnet

import (
	"testing"
	"time"
)

func TestBackoffDefaultsAndReadyImmediately(t *testing.T) {
	b := NewBackoff(0, 0)
	if !b.ReadyToConnect("node-b") {
		t.Fatal("a never-seen peer should be ready to connect immediately")
	}
	if b.State("node-b") != StateDisconnected {
		t.Fatal("an unseen peer should start disconnected")
	}
}

func TestBackoffMarkConnectedResetsAttempt(t *testing.T) {
	b := NewBackoff(time.Millisecond, 10*time.Millisecond)
	b.MarkDisconnected("p")
	b.MarkDisconnected("p")
	b.MarkConnected("p")
	if b.State("p") != StateConnected {
		t.Fatal("MarkConnected did not set state to connected")
	}
	if b.ReadyToConnect("p") {
		t.Fatal("a currently-connected peer should not report ready to reconnect")
	}
}

func TestBackoffMarkDisconnectedGrowsWithinCap(t *testing.T) {
	b := NewBackoff(time.Millisecond, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		d := b.MarkDisconnected("p")
		if d > 5*time.Millisecond {
			t.Fatalf("backoff delay %v exceeded cap 5ms", d)
		}
	}
	if b.State("p") != StateDisconnected {
		t.Fatal("MarkDisconnected should leave state disconnected")
	}
}

func TestBackoffReadyToConnectAfterWindowElapses(t *testing.T) {
	b := NewBackoff(time.Millisecond, 2*time.Millisecond)
	b.MarkDisconnected("p")
	time.Sleep(10 * time.Millisecond)
	if !b.ReadyToConnect("p") {
		t.Fatal("ReadyToConnect should be true once the backoff window has elapsed")
	}
}
