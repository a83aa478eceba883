package check

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewStatus_Empty(t *testing.T) {
	s := NewStatus()
	if s.Len() != 0 {
		t.Errorf("expected empty status, got %d entries", s.Len())
	}
	if s.Alive("alpha") {
		t.Error("unknown host should not be alive")
	}
	if _, ok := s.Result("alpha"); ok {
		t.Error("expected no result for unknown host")
	}
}

func TestStatus_SetResult(t *testing.T) {
	s := NewStatus()
	s.SetResult("alpha", Result{Success: true, Latency: 1234 * time.Microsecond})

	if !s.Alive("alpha") {
		t.Error("expected alpha alive after successful result")
	}
	r, ok := s.Result("alpha")
	if !ok {
		t.Fatal("expected a result for alpha")
	}
	if r.Latency != 1234*time.Microsecond {
		t.Errorf("expected latency 1.234ms, got %v", r.Latency)
	}

	s.SetResult("alpha", Result{Success: false})
	if s.Alive("alpha") {
		t.Error("expected alpha not alive after failed result")
	}
}

func TestStatus_Retain(t *testing.T) {
	s := NewStatus()
	for _, h := range []string{"alpha", "bravo", "charlie"} {
		s.SetResult(h, Result{Success: true})
	}

	s.Retain([]string{"bravo", "delta"})

	if s.Len() != 1 {
		t.Errorf("expected 1 entry after retain, got %d", s.Len())
	}
	if !s.Alive("bravo") {
		t.Error("expected bravo to be retained")
	}
	if _, ok := s.Result("alpha"); ok {
		t.Error("expected alpha to be dropped")
	}
}

func TestStatus_ConcurrentAccess(t *testing.T) {
	s := NewStatus()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			s.SetResult(fmt.Sprintf("host-%d", n%5), Result{Success: n%2 == 0})
		}(i)
		go func(n int) {
			defer wg.Done()
			s.Alive(fmt.Sprintf("host-%d", n%5))
		}(i)
	}
	wg.Wait()

	if s.Len() != 5 {
		t.Errorf("expected 5 hosts, got %d", s.Len())
	}
}
