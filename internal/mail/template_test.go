package mail

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderEmbedded(t *testing.T) {
	t.Parallel()
	r := NewRenderer("")
	out, err := r.Render("memory_alert.html", map[string]any{
		"Now": "2026-01-01 00:00:00", "Hostname": "srv1", "OS": "Linux",
		"CPUPercent": 12.5, "MemUsedGB": 3.2, "MemTotalGB": 8.0,
		"MemPercent": 40.0, "UptimeHours": 5, "UptimeMinutes": 10,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "srv1") || !strings.Contains(out, "memory alert") {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := r.Render("nope.html", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRenderOverrideDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "napcat_offline.html"), []byte("<p>custom {{.Status}}</p>"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRenderer(dir)
	out, err := r.Render("napcat_offline.html", map[string]any{"Status": "offline"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "custom offline") {
		t.Fatalf("override not used:\n%s", out)
	}
}
