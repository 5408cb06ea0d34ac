package syncx

import (
	"sync"
	"testing"
)

func TestGuardGetSet(t *testing.T) {
	g := NewGuard("idle")
	if g.Get() != "idle" {
		t.Errorf("Get() = %q, want %q", g.Get(), "idle")
	}

	g.Set("researching")
	if g.Get() != "researching" {
		t.Errorf("Get() = %q, want %q", g.Get(), "researching")
	}
}

func TestGuardUpdate(t *testing.T) {
	g := NewGuard(0)
	g.Update(func(v *int) { *v += 5 })
	if g.Get() != 5 {
		t.Errorf("Get() = %d, want 5", g.Get())
	}
}

func TestGuardRead(t *testing.T) {
	g := NewGuard([]string{"a", "b"})
	var n int
	g.Read(func(v []string) { n = len(v) })
	if n != 2 {
		t.Errorf("Read saw %d elements, want 2", n)
	}
}

func TestGuardConcurrent(t *testing.T) {
	g := NewGuard(0)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Update(func(v *int) { *v++ })
		}()
	}
	wg.Wait()

	if g.Get() != 100 {
		t.Errorf("Get() = %d, want 100", g.Get())
	}
}
