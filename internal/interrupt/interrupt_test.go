package interrupt

import (
	"errors"
	"os"
	"testing"

	"github.com/danmuck/linkollector/internal/testutil/testlog"
)

func install(t *testing.T, data any, cb Callback) *Registration {
	t.Helper()
	reg, err := Install(data, cb)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestInstallDeliverClose(t *testing.T) {
	testlog.Start(t)

	var got []any
	reg := install(t, "ctx", func(data any) { got = append(got, data) })
	if !Installed() {
		t.Fatalf("expected a live registration")
	}
	if !Deliver(os.Interrupt) {
		t.Fatalf("expected delivery to run the callback")
	}
	if len(got) != 1 || got[0] != "ctx" {
		t.Fatalf("callback saw %v", got)
	}

	if err := reg.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if Installed() {
		t.Fatalf("registration should be cleared after close")
	}
	_, lostBefore := Stats()
	if Deliver(os.Interrupt) {
		t.Fatalf("delivery after close should be dropped")
	}
	if _, lost := Stats(); lost != lostBefore+1 {
		t.Fatalf("expected dropped counter to advance, got %d -> %d", lostBefore, lost)
	}
	if len(got) != 1 {
		t.Fatalf("callback ran after close: %v", got)
	}
}

func TestSecondInstallRejected(t *testing.T) {
	testlog.Start(t)

	install(t, nil, func(any) {})
	if _, err := Install(nil, func(any) {}); !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
}

func TestInstallAfterCloseSucceeds(t *testing.T) {
	testlog.Start(t)

	first, err := Install(1, func(any) {})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	_ = first.Close()

	var seen any
	install(t, 2, func(data any) { seen = data })
	Deliver(os.Interrupt)
	if seen != 2 {
		t.Fatalf("expected the second registration's data, got %v", seen)
	}
	// A stale handle must not clear the newer registration.
	_ = first.Close()
	if !Installed() {
		t.Fatalf("stale close cleared the live registration")
	}
}

func TestInstallRejectsNilCallback(t *testing.T) {
	testlog.Start(t)

	if _, err := Install(nil, nil); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("expected ErrNilCallback, got %v", err)
	}
}
