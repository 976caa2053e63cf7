// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := Fake(start)

	if !clk.Now().Equal(start) {
		t.Errorf("Now = %v, want %v", clk.Now(), start)
	}
	if !clk.Now().Equal(clk.Now()) {
		t.Error("fake time moved on its own")
	}

	clk.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !clk.Now().Equal(want) {
		t.Errorf("after Advance: Now = %v, want %v", clk.Now(), want)
	}

	target := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(target)
	if !clk.Now().Equal(target) {
		t.Errorf("after Set: Now = %v, want %v", clk.Now(), target)
	}
}
