package cache

import (
	"testing"
	"time"
)

func TestRistrettoAdapterSetGetDelete(t *testing.T) {
	c, err := NewRistrettoAdapter[string]("test")
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	key := "test-key"
	c.Set(key, "hello", 5*time.Minute)

	deadline := time.Now().Add(time.Second)
	var found bool
	var retrieved string
	for time.Now().Before(deadline) {
		retrieved, found = c.Get(key)
		if found {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !found {
		t.Fatal("expected to find data in cache after Set")
	}
	if retrieved != "hello" {
		t.Fatalf("retrieved data doesn't match what was set: got %q", retrieved)
	}

	c.Delete(key)

	if _, found := c.Get(key); found {
		t.Fatal("expected data to be deleted from cache after Delete")
	}
}
