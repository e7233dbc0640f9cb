// Package render turns fetched source data into digest email bodies.
// The Renderer interface is the seam a richer template layer plugs into;
// the dispatcher only ever sees the interface.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/newsletter-engine/internal/models"
	"github.com/newsletter-engine/internal/source"
)

// Renderer produces the email body for one newsletter issue
type Renderer interface {
	Render(n *models.Newsletter, results []source.FetchResult, now time.Time) (string, error)
}

// HTMLRenderer is the built-in plain digest layout
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTML creates the built-in HTML renderer
func NewHTML() (*HTMLRenderer, error) {
	tmpl, err := template.New("digest").Funcs(template.FuncMap{
		"deltaColor": deltaColor,
	}).Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

type section struct {
	Title string
	Rows  []models.Row
}

type digestData struct {
	Title    string
	Date     string
	Sections []section
}

// Render renders the digest for one newsletter
func (r *HTMLRenderer) Render(n *models.Newsletter, results []source.FetchResult, now time.Time) (string, error) {
	data := digestData{
		Title:    n.Title,
		Date:     now.Format("Monday, January 2, 2006"),
		Sections: make([]section, 0, len(results)),
	}
	for _, res := range results {
		data.Sections = append(data.Sections, section{Title: res.Title, Rows: res.Rows})
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.String(), nil
}

func deltaColor(c models.DeltaColor) template.CSS {
	switch c {
	case models.DeltaGreen:
		return "#0a8f3c"
	case models.DeltaRed:
		return "#c62828"
	default:
		return "#1565c0"
	}
}

const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #222; max-width: 640px; margin: 0 auto;">
  <h1 style="font-size: 22px;">{{.Title}}</h1>
  <p style="color: #666; margin-top: -8px;">{{.Date}}</p>
{{- range .Sections}}
  <h2 style="font-size: 16px; border-bottom: 1px solid #ddd; padding-bottom: 4px;">{{.Title}}</h2>
  <table style="width: 100%; border-collapse: collapse;">
  {{- range .Rows}}
    <tr>
      <td style="padding: 4px 0; color: #555;">{{.Label}}</td>
      <td style="padding: 4px 0; text-align: right;">{{.Value}}
        {{- with .Delta}} <span style="color: {{deltaColor .Color}};">{{.Value}}</span>{{end}}
        {{- if .Timestamp}} <span style="color: #999; font-size: 12px;">{{.Timestamp}}</span>{{end}}
      </td>
    </tr>
  {{- end}}
  </table>
{{- end}}
  <p style="color: #999; font-size: 12px; margin-top: 24px;">You are receiving this digest because it is configured in your newsletter settings.</p>
</body>
</html>
`

var _ Renderer = (*HTMLRenderer)(nil)
