package logger

import (
	"strings"
	"testing"
)

func TestScrubberRedactsAndHashes(t *testing.T) {
	s := &scrubber{salt: "pepper"}
	in := []interface{}{"api_token", "abc", "learner_id", "learner-42", "steps", 3, "registry_dsn", "postgres://u:p@h/db"}
	out := s.apply(in)
	if len(out) != len(in) {
		t.Fatalf("len=%d", len(out))
	}
	if out[1] != "[REDACTED]" || out[7] != "[REDACTED]" {
		t.Fatalf("secrets not redacted: %v", out)
	}
	h, ok := out[3].(string)
	if !ok || !strings.HasPrefix(h, "hash:") || strings.Contains(h, "learner-42") {
		t.Fatalf("learner_id not hashed: %v", out[3])
	}
	if out[5] != 3 {
		t.Fatalf("plain value changed: %v", out[5])
	}
	if in[1] != "abc" {
		t.Fatal("input slice was modified")
	}
}

func TestScrubberJWTValueAndOddLength(t *testing.T) {
	s := &scrubber{}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJsZWFybmVyIn0.sig"
	out := s.apply([]interface{}{"header", jwt, "dangling"})
	if out[1] != "[REDACTED]" || out[2] != "dangling" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestNilScrubberPassesThrough(t *testing.T) {
	var s *scrubber
	in := []interface{}{"password", "x"}
	if out := s.apply(in); out[1] != "x" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop().With("service", "test")
	l.Info("hello", "password", "x")
	l.Sync()
}
