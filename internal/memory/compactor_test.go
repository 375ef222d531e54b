package memory

import (
	"context"
	"strings"
	"testing"
)

func repeatTokens(word string, n int) string {
	return strings.Repeat(word+" ", n)
}

func TestOutputCompactor_Passthrough(t *testing.T) {
	c := NewOutputCompactor()
	text := repeatTokens("short", 50) // ~75 tokens, under 200
	out, strat, err := c.Compact(context.Background(), nil, text)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if strat != StrategyPassthrough || out != text {
		t.Fatalf("expected passthrough unchanged, got strategy=%s", strat)
	}
}

func TestOutputCompactor_StripRemovesHTMLAndImages(t *testing.T) {
	c := NewOutputCompactor()
	text := "<div>hello</div> ![alt](http://x.png) " + repeatTokens("word", 250)
	out, strat, err := c.Compact(context.Background(), nil, text)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if strat != StrategyStrip {
		t.Fatalf("expected strip strategy, got %s", strat)
	}
	if strings.Contains(out, "<div>") || strings.Contains(out, "![alt]") {
		t.Fatalf("expected HTML/image syntax stripped, got %q", out[:min(80, len(out))])
	}
}

func TestOutputCompactor_TruncateAddsMarker(t *testing.T) {
	c := NewOutputCompactor()
	lines := make([]string, 0, 400)
	for i := 0; i < 400; i++ {
		lines = append(lines, repeatTokens("x", 3))
	}
	text := strings.Join(lines, "\n")
	out, strat, err := c.Compact(context.Background(), nil, text)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if strat != StrategyTruncate {
		t.Fatalf("expected truncate strategy, got %s", strat)
	}
	if !strings.Contains(out, "[truncated,") {
		t.Fatalf("expected visible truncation marker, got tail: %q", out[max(0, len(out)-60):])
	}
}

func TestOutputCompactor_SummarizeFallsBackToTruncateOnError(t *testing.T) {
	c := NewOutputCompactor()
	text := repeatTokens("word", 2000)
	out, strat, err := c.Compact(context.Background(), &fakeSummariser{err: errTestTransient}, text)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if strat != StrategyTruncate {
		t.Fatalf("expected fallback to truncate on summariser error, got %s", strat)
	}
	if out == "" {
		t.Fatalf("expected non-empty fallback output")
	}
}
