package web

import (
	"html/template"
	"net/http"

	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/read"
	"github.com/gptscan/gptscan/internal/record"
)

// listRow is a flattened view of one GPT for the list table.
type listRow struct {
	ID          string
	Name        string
	Owner       string
	Visibility  string
	SharedCount int
	HasActions  bool
	FileCount   int
}

type listPage struct {
	Title     string
	Search    string
	Rows      []listRow
	Total     int
	FromCache bool
	FetchedAt string
}

// GPT is a pointer so templates can reach the pointer-receiver accessors.
type detailPage struct {
	Title        string
	GPT          *record.GPT
	Instructions template.HTML
	Fingerprint  string
}

type errorPage struct {
	Title   string
	Code    string
	Message string
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("q")

	listing, err := s.reader.ListRecords(r.Context(), read.ListOptions{
		Filter:    record.Filter{Query: search},
		CacheOnly: true,
	})
	if err != nil {
		s.renderError(w, err)
		return
	}

	rows := make([]listRow, 0, len(listing.Records))
	for _, g := range listing.Records {
		rows = append(rows, listRow{
			ID:          g.ID,
			Name:        g.Name(),
			Owner:       g.OwnerEmail,
			Visibility:  g.Visibility(),
			SharedCount: g.SharedUserCount(),
			HasActions:  g.HasCustomActions(),
			FileCount:   len(g.Files()),
		})
	}

	s.renderPage(w, "list.html", listPage{
		Title:     "Workspace GPTs",
		Search:    search,
		Rows:      rows,
		Total:     listing.Total,
		FromCache: listing.FromCache,
		FetchedAt: listing.FetchedAt.Format("2006-01-02 15:04"),
	})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	gpt, err := s.reader.GetRecord(r.Context(), id)
	if err != nil {
		s.renderError(w, err)
		return
	}

	instructions, err := s.render.Markdown(gpt.Instructions())
	if err != nil {
		s.log.Warn("markdown render failed", "gpt_id", id, "error", err)
		instructions = ""
	}

	s.renderPage(w, "detail.html", detailPage{
		Title:        gpt.Name(),
		GPT:          gpt,
		Instructions: instructions,
		Fingerprint:  gpt.Fingerprint(),
	})
}

func (s *Server) renderPage(w http.ResponseWriter, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.render.Render(w, page, data); err != nil {
		s.log.Error("template render failed", "page", page, "error", err)
	}
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	msg := "an internal error occurred"

	if gErr, ok := err.(*errors.Error); ok {
		msg = gErr.Message
		switch code {
		case errors.ErrNotFound:
			status = http.StatusNotFound
		case errors.ErrValidation:
			status = http.StatusBadRequest
		case errors.ErrAuthentication, errors.ErrAuthorization:
			status = http.StatusBadGateway
		case errors.ErrInternal:
			msg = "an internal error occurred"
		default:
			status = http.StatusBadGateway
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if rErr := s.render.Render(w, "error.html", errorPage{
		Title:   "Error",
		Code:    string(code),
		Message: msg,
	}); rErr != nil {
		s.log.Error("template render failed", "page", "error.html", "error", rErr)
	}
}
