package reporting

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"time"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

const overviewTemplate = "overview.html.tmpl"

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			if d < time.Second {
				return fmt.Sprintf("%dms", d.Milliseconds())
			}
			return d.Truncate(time.Millisecond).String()
		},
		"totals": func(c *Collection) map[string]int {
			passed, failed, skipped := c.Totals()
			return map[string]int{"passed": passed, "failed": failed, "skipped": skipped}
		},
	}
}

// RenderHTML renders the overview page.
func RenderHTML(r *Report) ([]byte, error) {
	tmpl, err := template.New(overviewTemplate).Funcs(templateFuncs()).ParseFS(templateFS, "templates/"+overviewTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse overview template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("failed to render overview: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML renders the overview page to path.
func WriteHTML(path string, r *Report) error {
	data, err := RenderHTML(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write overview %s: %w", path, err)
	}
	return nil
}
