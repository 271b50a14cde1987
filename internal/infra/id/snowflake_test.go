package id

import "testing"

func TestGeneratorIsMonotonic(t *testing.T) {
	g, err := NewGenerator(7)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	prev := g.NextID()
	for i := 0; i < 1000; i++ {
		next := g.NextID()
		if next <= prev {
			t.Fatalf("id %d not greater than %d", next, prev)
		}
		prev = next
	}
}

func TestGeneratorRejectsBadNode(t *testing.T) {
	if _, err := NewGenerator(5000); err == nil {
		t.Fatalf("expected error for node out of range")
	}
}
