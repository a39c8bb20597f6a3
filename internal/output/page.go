package output

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperifyio/catalogbuilder/internal/catalog"
)

var pageTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	// Attribute HTML has already been sanitized by the renderer.
	"trusted": func(s string) template.HTML { return template.HTML(s) },
	"slug":    slug,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Project Catalog</title>
</head>
<body>
<h1>Project Catalog</h1>
<p class="generated">Generated {{.GeneratedAt.Format "2006-01-02 15:04 UTC"}}</p>
{{range .Projects}}
<section class="project status-{{.Status}}" id="{{slug .ID}}">
<h2><a href="{{.RepoURL}}">{{.Name}}</a> <span class="badge">{{.Status}}</span></h2>
{{range .Ordered}}
<div class="attribute attribute-{{.Key}}">
<h3>{{.DisplayName}}</h3>
{{trusted .HTML}}
{{if .Source}}<p class="source"><a href="{{.Source}}">source</a></p>{{end}}
</div>
{{end}}
{{if .Errors}}
<ul class="errors">
{{range .Errors}}<li><code>{{.Code}}</code>{{if .Attribute}} {{.Attribute}}{{end}}: {{.Message}}</li>
{{end}}</ul>
{{end}}
</section>
{{end}}
</body>
</html>
`))

// slug turns a project ID such as "org/repo@branch" into an HTML id.
func slug(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

type pageData struct {
	GeneratedAt time.Time
	Projects    []*catalog.ProjectRecord
}

// WritePage renders dir/index.html listing every project in repo order.
func WritePage(dir string, cat *catalog.Catalog) (string, error) {
	var buf bytes.Buffer
	data := pageData{GeneratedAt: cat.GeneratedAt.UTC(), Projects: cat.Sorted()}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	path := filepath.Join(dir, PageFile)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}
