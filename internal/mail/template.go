package mail

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders the built-in alert templates, with an optional on-disk
// override directory consulted first. A broken override falls back to the
// embedded copy.
type Renderer struct {
	overrideDir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

func NewRenderer(overrideDir string) *Renderer {
	return &Renderer{
		overrideDir: strings.TrimSpace(overrideDir),
		cache:       map[string]*template.Template{},
	}
}

// Render executes the named template ("memory_alert.html",
// "napcat_offline.html") with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	t, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

func (r *Renderer) lookup(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.cache[name]; ok {
		return t, nil
	}

	if r.overrideDir != "" {
		path := filepath.Join(r.overrideDir, name)
		if b, err := os.ReadFile(path); err == nil {
			if t, perr := template.New(name).Parse(string(b)); perr == nil {
				r.cache[name] = t
				return t, nil
			}
			// fall through to embedded on parse error
		}
	}

	b, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	t, err := template.New(name).Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse embedded %s: %w", name, err)
	}
	r.cache[name] = t
	return t, nil
}
