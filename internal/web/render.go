package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/evergreen-lab/loam/internal/entity"
	"github.com/evergreen-lab/loam/internal/errors"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "impact", "memories", "search"
}

// ImpactPageData is the template data for the impact report page.
type ImpactPageData struct {
	PageData
	Report       metrics.Report
	RenderedHTML template.HTML
}

// MemoriesPageData is the template data for the memory list page.
type MemoriesPageData struct {
	PageData
	Identity string
	Category string
	Entries  []entity.MemoryEntry
	Count    int
}

// SearchPageData is the template data for the memory search page.
type SearchPageData struct {
	PageData
	Identity string
	Query    string
	Category string
	Results  []store.SearchResult
	HasQuery bool
}

// ProfilePageData is the template data for the profile page.
type ProfilePageData struct {
	PageData
	Profile *entity.Profile
	History *store.History
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"add":        func(a, b int) int { return a + b },
		"sub":        func(a, b int) int { return a - b },
		"formatTime": formatTime,
		"formatKg":   formatKg,
		"safeHTML":   func(s string) template.HTML { return template.HTML(s) },
	}

	// Parse layout as the base template
	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"impact":   "impact.html",
		"memories": "memories.html",
		"search":   "search.html",
		"profile":  "profile.html",
		"error":    "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, ok := r.templates[name]
	if !ok {
		log.Printf("template %q not found", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req != nil && req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Printf("template execution error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderBlock renders a specific named block from a page template.
// Used for htmx partial swaps that target a sub-section of the page.
func (r *Renderer) renderBlock(w http.ResponseWriter, status int, page, block string, data any) {
	t, ok := r.templates[page]
	if !ok {
		log.Printf("template %q not found", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Printf("template block %q execution error: %v", block, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	var lErr *errors.LoamError
	if !stderrors.As(err, &lErr) {
		lErr = errors.NewInternal(err)
	}

	status := lErr.Status
	message := lErr.Message

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(message))
		return
	}

	// JSON request
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    string(lErr.Code),
				"message": message,
				"status":  status,
			},
		})
		return
	}

	// Full error page
	r.renderPageStatus(w, req, status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", status),
			Version: r.version,
		},
		StatusCode: status,
		Message:    message,
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}

// formatKg formats a kg CO2 amount with one decimal place.
func formatKg(kg float64) string {
	return fmt.Sprintf("%.1f", kg)
}
