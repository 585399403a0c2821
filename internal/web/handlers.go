package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/evergreen-lab/loam/internal/config"
	"github.com/evergreen-lab/loam/internal/db"
	"github.com/evergreen-lab/loam/internal/errors"
	"github.com/evergreen-lab/loam/internal/metrics"
	"github.com/evergreen-lab/loam/internal/store"
)

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	st       *store.Store
	cfg      *config.Config
	tracker  *metrics.Tracker
	renderer *Renderer
}

// HandleImpact handles GET /impact — the collective impact report.
func (h *Handlers) HandleImpact(w http.ResponseWriter, r *http.Request) {
	report := h.tracker.Summary()

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, report)
		return
	}

	h.renderer.renderPage(w, r, "impact", ImpactPageData{
		PageData: PageData{
			Title:   "Impact",
			Version: h.renderer.version,
			Nav:     "impact",
		},
		Report:       report,
		RenderedHTML: renderMarkdown(report.Markdown()),
	})
}

// HandleMemories handles GET /memories — list memory entries for an identity.
func (h *Handlers) HandleMemories(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	category := r.URL.Query().Get("category")

	data := MemoriesPageData{
		PageData: PageData{
			Title:   "Memories",
			Version: h.renderer.version,
			Nav:     "memories",
		},
		Identity: identity,
		Category: category,
	}

	// Without an identity, show the empty page with its lookup form.
	if identity == "" {
		h.renderer.renderPage(w, r, "memories", data)
		return
	}

	entries, err := db.ListMemories(h.st.DB(), identity, category)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	limit := parseIntParam(r, "limit", 50)
	if limit > 0 && len(entries) > limit {
		// Newest last in storage order; show the most recent window.
		entries = entries[len(entries)-limit:]
	}

	data.Entries = entries
	data.Count = len(entries)

	h.renderer.renderPage(w, r, "memories", data)
}

// HandleSearch handles GET /memories/search — keyword retrieval.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Identity: identity,
		Query:    query,
		Category: category,
		HasQuery: query != "" && identity != "",
	}

	if !data.HasQuery {
		// If htmx targets #results (user cleared the search box), return just the results fragment
		if r.Header.Get("HX-Target") == "results" {
			h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
			return
		}
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	results, err := h.st.Search(store.SearchInput{
		Identity: identity,
		Query:    query,
		Category: category,
		Limit:    parseIntParam(r, "limit", store.DefaultSearchLimit),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Results = results

	// If htmx targets #results, render only the results fragment
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
		return
	}

	h.renderer.renderPage(w, r, "search", data)
}

// HandleProfile handles GET /profiles/{identity} — view a profile and its history.
func (h *Handlers) HandleProfile(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if identity == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("identity is required"))
		return
	}

	profile, found, err := h.st.GetProfile(identity)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if !found {
		h.renderer.renderError(w, r, errors.NewNotFound(identity))
		return
	}

	history, err := h.st.MeasurementHistory(identity, "", 0)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		renderJSON(w, http.StatusOK, map[string]any{
			"profile": profile,
			"history": history,
		})
		return
	}

	h.renderer.renderPage(w, r, "profile", ProfilePageData{
		PageData: PageData{
			Title:   identity,
			Version: h.renderer.version,
			Nav:     "memories",
		},
		Profile: profile,
		History: history,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
