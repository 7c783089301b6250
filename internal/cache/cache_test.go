// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package cache

import (
	"net/url"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", []byte("hello"))
	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set("a", []byte("x"))

	c.now = func() time.Time { return base.Add(30 * time.Second) }
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired too early")
	}

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not deleted, len = %d", c.Len())
	}
}

func TestCacheStats(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", []byte("x"))
	c.Get("a")
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestCacheDeleteClear(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry still present")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", c.Len())
	}
}

func TestRequestKeyStable(t *testing.T) {
	p1 := url.Values{}
	p1.Set("dateStart", "2024-01-10")
	p1.Set("dateEnd", "2024-01-17")

	p2 := url.Values{}
	p2.Set("dateEnd", "2024-01-17")
	p2.Set("dateStart", "2024-01-10")

	if RequestKey("/schedule", p1) != RequestKey("/schedule", p2) {
		t.Error("same params in different order produced different keys")
	}
	if RequestKey("/schedule", p1) == RequestKey("/other", p1) {
		t.Error("different paths produced the same key")
	}
}
