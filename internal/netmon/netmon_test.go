package netmon

import (
	"io"
	"log"
	"testing"
)

func testMonitor() *Monitor {
	return New("", 0, log.New(io.Discard, "", 0))
}

func TestStartsOnline(t *testing.T) {
	m := testMonitor()
	if !m.Online() {
		t.Fatal("expected monitor to start online")
	}
}

func TestTransitionsFireObservers(t *testing.T) {
	m := testMonitor()

	var wentOffline, wentOnline int
	m.OnOffline(func() { wentOffline++ })
	m.OnOnline(func() { wentOnline++ })

	m.SetOnline(false)
	m.SetOnline(false) // no transition, no callback
	m.SetOnline(true)

	if wentOffline != 1 {
		t.Errorf("offline observers fired %d times, want 1", wentOffline)
	}
	if wentOnline != 1 {
		t.Errorf("online observers fired %d times, want 1", wentOnline)
	}
	if !m.Online() {
		t.Error("expected monitor to report online")
	}
}

func TestSetOnlineSameStateIsNoop(t *testing.T) {
	m := testMonitor()

	fired := false
	m.OnOnline(func() { fired = true })

	m.SetOnline(true)
	if fired {
		t.Error("observer fired without a transition")
	}
}
