package testutil

import (
	"net"
	"testing"
	"time"
)

// ReadChannel tries to read a message from a channel and returns it. If there isn't any
// message after the given timeout, it fails the provided test. Closed channels are read as
// their zero value.
func ReadChannel[T any](t *testing.T, inCh <-chan T, timeout time.Duration) T {
	t.Helper()
	var item T
	select {
	case item = <-inCh:
		return item
	case <-time.After(timeout):
		t.Fatalf("timeout (%s) while waiting for event in input channel", timeout)
	}
	return item
}

// FreeTCPPort returns a local TCP port that was free at the moment of invoking it
func FreeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("can't find a free TCP port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
