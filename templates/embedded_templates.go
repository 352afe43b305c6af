// Package templates embeds the HTML pages served by the monitor.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"strings"
	"time"
)

const (
	templatesDir      = "tmpl"
	templateExtension = ".html"
)

//go:embed tmpl
var embeddedFiles embed.FS

var funcs = template.FuncMap{
	"percent": func(p float64) string {
		if p < 0 {
			return "-"
		}
		return fmt.Sprintf("%.0f%%", p*100)
	},
	"timestamp": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}

// Templates maps page names, relative to the template directory, to their template.
// i.e. templates/tmpl/monitor/status.html ---> "monitor/status.html".
type Templates map[string]*template.Template

// New parses the embedded template entries.
func New() (Templates, error) {
	templates := Templates{}
	err := fs.WalkDir(embeddedFiles, templatesDir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !strings.HasSuffix(path, templateExtension) {
			return nil
		}
		tmpl, err := template.New(path[strings.LastIndex(path, "/")+1:]).Funcs(funcs).ParseFS(embeddedFiles, path)
		if err != nil {
			return err
		}
		templates[strings.TrimPrefix(path, templatesDir+"/")] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing template files: %w", err)
	}
	return templates, nil
}

// Execute renders the named page with data.
func (t Templates) Execute(w io.Writer, name string, data interface{}) error {
	tmpl, ok := t[name]
	if !ok {
		return fmt.Errorf("no template named %q", name)
	}
	return tmpl.Execute(w, data)
}
