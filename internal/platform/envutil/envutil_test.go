package envutil

import (
	"testing"
	"time"
)

func TestDurationParsesGoDurationsAndSeconds(t *testing.T) {
	t.Setenv("DT_TEST_DURATION", "750ms")
	if got := Duration("DT_TEST_DURATION", time.Second); got != 750*time.Millisecond {
		t.Fatalf("duration string: want=750ms got=%s", got)
	}
	t.Setenv("DT_TEST_DURATION", "3")
	if got := Duration("DT_TEST_DURATION", time.Second); got != 3*time.Second {
		t.Fatalf("bare seconds: want=3s got=%s", got)
	}
	t.Setenv("DT_TEST_DURATION", "soon")
	if got := Duration("DT_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("garbage: want default got=%s", got)
	}
}

func TestBoolAndIntFallBackToDefault(t *testing.T) {
	t.Setenv("DT_TEST_BOOL", "maybe")
	if got := Bool("DT_TEST_BOOL", true); !got {
		t.Fatalf("bool garbage: want default=true")
	}
	t.Setenv("DT_TEST_BOOL", "off")
	if got := Bool("DT_TEST_BOOL", true); got {
		t.Fatalf("bool off: want=false")
	}
	t.Setenv("DT_TEST_INT", "x")
	if got := Int("DT_TEST_INT", 7); got != 7 {
		t.Fatalf("int garbage: want=7 got=%d", got)
	}
}
