package content

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hecho en **barro**\nfino")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, "<strong>barro</strong>") {
		t.Fatalf("expected strong text, got %q", got)
	}
	if !strings.Contains(got, "<br") {
		t.Fatalf("expected hard wrap, got %q", got)
	}
}

func TestRenderStripsScripts(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("hola <script>alert(1)</script> [x](javascript:alert(1))")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	got := string(out)
	if strings.Contains(got, "<script") || strings.Contains(got, "javascript:") {
		t.Fatalf("unsafe markup survived: %q", got)
	}
}

func TestRenderEmpty(t *testing.T) {
	out, err := NewRenderer().Render("   ")
	if err != nil || out != "" {
		t.Fatalf("expected empty output, got %q, %v", out, err)
	}
}

func TestPlainClips(t *testing.T) {
	got := NewRenderer().Plain("**Jarrón** de barro pintado a mano", 10)
	if got != "Jarrón de…" {
		t.Fatalf("unexpected %q", got)
	}
}
