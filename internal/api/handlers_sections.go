package api

import (
	"net/http"
	"os"

	"github.com/brainsh/brain/internal/errors"
	"github.com/brainsh/brain/internal/sections"
)

// entryBody loads the markdown body for an entry reference (task id, store
// path, or store path without the .md suffix).
func (s *Server) entryBody(r *http.Request, ref string) (string, error) {
	t, err := s.svc.GetTask(r.Context(), ref)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.svc.TaskFilePath(&t))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.CodeEntryNotFound, "entry file for %s is missing", ref)
		}
		return "", errors.Wrap(errors.CodeStorageFailed, err, "read entry %s", ref)
	}
	return string(data), nil
}

// handleSections lists the H2/H3 headers of an entry with 1-based lines.
func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	body, err := s.entryBody(r, ref)
	if err != nil {
		HandleError(w, err)
		return
	}

	headers := sections.List(body)
	if headers == nil {
		headers = []sections.Header{}
	}
	JSONResponse(w, map[string]any{
		"entry":    ref,
		"sections": headers,
		"count":    len(headers),
	})
}

// handleSection extracts one section body by title.
func (s *Server) handleSection(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	title := r.PathValue("title")
	includeSubsections := r.URL.Query().Get("includeSubsections") == "true"

	body, err := s.entryBody(r, ref)
	if err != nil {
		HandleError(w, err)
		return
	}

	content, ok := sections.Extract(body, title, includeSubsections)
	if !ok {
		HandleError(w, errors.New(errors.CodeSectionNotFound, "no section %q in %s", title, ref))
		return
	}
	JSONResponse(w, map[string]any{
		"entry":   ref,
		"title":   title,
		"content": content,
	})
}
