package wsmux

import "testing"

func TestValidTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateSniffing, StateTLSHandshaking}:    true,
		{StateSniffing, StateHTTPReading}:       true,
		{StateTLSHandshaking, StateHTTPReading}: true,
		{StateHTTPReading, StateWSUpgrading}:    true,
		{StateWSUpgrading, StateMessageLoop}:    true,
		{StateMessageLoop, StateMessageLoop}:    true,
		{StateClosing, StateClosed}:             true,
	}
	for from := StateSniffing; from <= StateClosed; from++ {
		for to := StateSniffing; to <= StateClosed; to++ {
			want := allowed[[2]State{from, to}]
			if from < StateClosing && (to == StateClosing || to == StateClosed) {
				want = true
			}
			if got := validTransition(from, to); got != want {
				t.Errorf("validTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStateString(t *testing.T) {
	if StateMessageLoop.String() != "message-loop" {
		t.Errorf("got %q", StateMessageLoop.String())
	}
	if State(42).String() != "invalid" {
		t.Errorf("got %q", State(42).String())
	}
}
