package cache

import (
	"testing"
	"time"
)

func TestPutAndGet(t *testing.T) {
	c := New(10, time.Hour)
	c.Put("hello", "de_DE", "thorsten", Entry{AudioBase64: "abc", SampleRate: 22050, DurationMs: 500})

	got, ok := c.Get("hello", "de_DE", "thorsten")
	if !ok {
		t.Fatal("Get returned false, want true")
	}
	if got.AudioBase64 != "abc" || got.SampleRate != 22050 {
		t.Errorf("Get = %+v, want audio=abc sample_rate=22050", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := New(10, time.Hour)
	if _, ok := c.Get("nope", "en", "default"); ok {
		t.Fatal("expected miss for absent key")
	}
}

func TestTupleIsolation(t *testing.T) {
	c := New(10, time.Hour)
	c.Put("hello", "de_DE", "thorsten", Entry{AudioBase64: "abc"})
	c.Put("world", "de_DE", "thorsten", Entry{AudioBase64: "xyz"})

	got, ok := c.Get("hello", "de_DE", "thorsten")
	if !ok || got.AudioBase64 != "abc" {
		t.Errorf("Get(hello) = %+v, ok=%v, want abc/true", got, ok)
	}
	got2, ok2 := c.Get("world", "de_DE", "thorsten")
	if !ok2 || got2.AudioBase64 != "xyz" {
		t.Errorf("Get(world) = %+v, ok=%v, want xyz/true", got2, ok2)
	}
}

func TestGetExpired(t *testing.T) {
	c := New(10, -time.Second) // already-expired TTL
	c.Put("hello", "en", "v", Entry{AudioBase64: "abc"})

	if _, ok := c.Get("hello", "en", "v"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
}

func TestEvictionLRU(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("a", "en", "v", Entry{AudioBase64: "a"})
	c.Put("b", "en", "v", Entry{AudioBase64: "b"})
	c.Put("c", "en", "v", Entry{AudioBase64: "c"}) // evicts "a"

	if _, ok := c.Get("a", "en", "v"); ok {
		t.Error("expected 'a' to be evicted")
	}
	if _, ok := c.Get("b", "en", "v"); !ok {
		t.Error("expected 'b' to remain")
	}
	if _, ok := c.Get("c", "en", "v"); !ok {
		t.Error("expected 'c' to remain")
	}
}

func TestEvictionOrderRespectsRecency(t *testing.T) {
	c := New(2, time.Hour)
	c.Put("old", "en", "v", Entry{AudioBase64: "old"})
	c.Put("mid", "en", "v", Entry{AudioBase64: "mid"})
	c.Get("old", "en", "v") // touch "old", making "mid" the LRU victim

	c.Put("new", "en", "v", Entry{AudioBase64: "new"})

	if _, ok := c.Get("mid", "en", "v"); ok {
		t.Error("expected 'mid' to be evicted (least recently used)")
	}
	if _, ok := c.Get("old", "en", "v"); !ok {
		t.Error("expected 'old' to remain (recently touched)")
	}
}

func TestStats(t *testing.T) {
	c := New(10, time.Hour)
	c.Put("hello", "en", "v", Entry{AudioBase64: "abc"})
	c.Get("hello", "en", "v")
	c.Get("missing", "en", "v")

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = hits=%d misses=%d, want 1/1", hits, misses)
	}
}

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("hello", "en", "v")
	k2 := Key("hello", "en", "v")
	if k1 != k2 {
		t.Error("same input produced different keys")
	}
}

func TestKeyDiffers(t *testing.T) {
	if Key("hello", "en", "v") == Key("world", "en", "v") {
		t.Error("different text produced same key")
	}
}
