package config

import (
	"testing"
	"time"
)

func TestPrefixComposes(t *testing.T) {
	c := New().Prefix("SPIDER_").Prefix("GITEA_")
	t.Setenv("SPIDER_GITEA_TOKEN", "abc")
	if got := c.MayString("TOKEN", ""); got != "abc" {
		t.Fatalf("MayString = %q, want abc", got)
	}
}

func TestMayIntFallsBack(t *testing.T) {
	c := New().Prefix("T_")
	t.Setenv("T_CONCURRENCY", "not-a-number")
	if got := c.MayInt("CONCURRENCY", 4); got != 4 {
		t.Fatalf("MayInt = %d, want default 4", got)
	}
	t.Setenv("T_CONCURRENCY", "8")
	if got := c.MayInt("CONCURRENCY", 4); got != 8 {
		t.Fatalf("MayInt = %d, want 8", got)
	}
}

func TestMayDuration(t *testing.T) {
	c := New().Prefix("T_")
	t.Setenv("T_POLL", "90s")
	if got := c.MayDuration("POLL", time.Minute); got != 90*time.Second {
		t.Fatalf("MayDuration = %v, want 90s", got)
	}
	t.Setenv("T_POLL", "")
	if got := c.MayDuration("POLL", time.Minute); got != time.Minute {
		t.Fatalf("MayDuration fallback = %v, want 1m", got)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("T_")
	t.Setenv("T_FORGES", " https://a.example , https://b.example ,")
	got := c.MayCSV("FORGES", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("MayCSV = %v", got)
	}
}
