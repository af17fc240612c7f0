package gateway

import "testing"

func TestIPLimiterSetBlocksAfterBurst(t *testing.T) {
	s := newIPLimiterSet(2, 1000)
	if !s.allow("1.2.3.4") {
		t.Fatal("first request should be allowed")
	}
	if !s.allow("1.2.3.4") {
		t.Fatal("second request should be allowed within burst")
	}
	if s.allow("1.2.3.4") {
		t.Fatal("third request should exceed the per-minute burst")
	}
}

func TestIPLimiterSetTracksIndependently(t *testing.T) {
	s := newIPLimiterSet(1, 1000)
	if !s.allow("10.0.0.1") {
		t.Fatal("expected first IP's first request to be allowed")
	}
	if !s.allow("10.0.0.2") {
		t.Fatal("expected second IP's first request to be allowed independently")
	}
}
