package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)

	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "gsm") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "cdma") })
	c.AfterFunc(10*time.Second, func() { order = append(order, "late") })

	c.Advance(3 * time.Second)
	if len(order) != 2 || order[0] != "cdma" || order[1] != "gsm" {
		t.Fatalf("order = %v, want [cdma gsm]", order)
	}
	if got := c.Now(); !got.Equal(start.Add(3 * time.Second)) {
		t.Errorf("Now = %v", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop returned true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeCallbackMayScheduleMore(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)
	c.Advance(5 * time.Second)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
