package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	mdposter "github.com/alnah/go-mdposter"
)

// posterRequest is the generation request body. "markdown" is accepted as
// an alias of "content" for existing clients.
type posterRequest struct {
	Content  string `json:"content"`
	Markdown string `json:"markdown"`
	Header   string `json:"header"`
	Footer   string `json:"footer"`
	Theme    string `json:"theme"`
}

func (p posterRequest) toRequest() mdposter.Request {
	content := p.Content
	if content == "" {
		content = p.Markdown
	}
	return mdposter.Request{Content: content, Header: p.Header, Footer: p.Footer, Theme: p.Theme}
}

// posterResponse is the success body of the generation endpoint.
type posterResponse struct {
	Base64 string `json:"base64"`
	Source string `json:"source"`
	Hash   string `json:"hash"`
}

type healthResponse struct {
	Status string              `json:"status"`
	Pool   *mdposter.PoolStats `json:"pool,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With("request_id", RequestID(r.Context()))

	var body posterRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req := body.toRequest()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, mdposter.ErrEmptyContent), errors.Is(err, mdposter.ErrInvalidEncoding):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
			log.Info("client went away", "error", err)
		default:
			log.Error("poster generation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate poster")
		}
		return
	}
	if res.CacheErr != nil {
		log.Warn("poster not cached", "hash", res.Hash, "error", res.CacheErr)
	}

	writeJSON(w, http.StatusOK, posterResponse{
		Base64: dataURI(res.Image),
		Source: string(res.Source),
		Hash:   res.Hash,
	})
}

// handleImage serves a cached poster by content hash.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok || !mdposter.IsValidKey(key) {
		writeError(w, http.StatusNotFound, "Poster not found")
		return
	}

	etag := `"` + key + `"`
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, found, err := s.images.Get(r.Context(), key)
	if err != nil {
		s.logger.Error("cached poster read failed", "hash", key, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read poster")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Poster not found")
		return
	}

	// Keys are content hashes, so the bytes behind a URL never change.
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.stats != nil {
		st := s.stats.Stats()
		resp.Pool = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

type themesResponse struct {
	Themes  []string `json:"themes"`
	Default string   `json:"default"`
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	names, err := s.themes.Themes()
	if err != nil {
		s.logger.Error("listing themes", "error", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to list themes")
		return
	}
	writeJSON(w, http.StatusOK, themesResponse{Themes: names, Default: s.themes.DefaultTheme()})
}

func dataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
