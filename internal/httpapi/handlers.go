package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	errs "iganalyzer/pkg/errors"
	"iganalyzer/pkg/session"
	"iganalyzer/pkg/storage"
)

const (
	msgNoData          = "No data provided"
	msgSessionNotFound = "Session not found or expired"
	msgCleanupFailed   = "Failed to clean session"
)

type analyzeRequest struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure answers with HTTP 200 and success=false, which is what the
// browser client polls for
func writeFailure(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"status":          "ok",
		"sessions":        s.sessions.Count(),
		"session_ttl_min": s.sessions.TTL().Minutes(),
	}
	if s.jobs != nil {
		resp["jobs"] = map[string]interface{}{
			"workers":   s.jobs.Workers(),
			"active":    s.jobs.ActiveWorkers(),
			"queued":    s.jobs.QueueSize(),
			"completed": s.jobs.Completed(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, msgNoData)
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), req.URL, req.SessionID)
	if err != nil {
		s.logger.WithError(err).WarnWithFields("Analyze request failed", map[string]interface{}{
			"url": req.URL,
		})
		writeFailure(w, errs.UserMessage(err))
		return
	}

	body := map[string]interface{}{
		"success":    true,
		"session_id": res.SessionID,
		"username":   res.Username,
		"status":     res.Status,
		"message":    res.Message,
	}
	if res.Cached && res.Session != nil {
		sess := res.Session
		data := map[string]interface{}{
			"profile":   sess.Profile,
			"posts":     sess.Posts,
			"stories":   sess.Stories,
			"analytics": sess.Analytics,
		}
		body["data"] = data
		for k, v := range data {
			body[k] = v
		}
		body["posts_analyzed"] = sess.PostsAnalyzed
		body["posts_downloaded"] = len(sess.Posts)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSessionData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.sessions.Get(id, session.Renew)
	if !ok {
		writeFailure(w, msgSessionNotFound)
		return
	}

	message := "OK"
	if sess.Status == session.StatusFailed {
		message = sess.Error
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"session_id":       sess.ID,
		"status":           sess.Status,
		"data_loaded":      sess.DataLoaded,
		"profile":          sess.Profile,
		"posts":            sess.Posts,
		"stories":          sess.Stories,
		"analytics":        sess.Analytics,
		"posts_analyzed":   sess.PostsAnalyzed,
		"expires_at":       sess.ExpiresAt.Format(time.RFC3339),
		"last_accessed":    sess.LastAccessed.Format(time.RFC3339),
		"progress":         sess.Progress,
		"downloaded_posts": sess.DownloadedPosts,
		"total_posts":      sess.TotalPosts,
		"stories_count":    sess.StoriesCount,
		"error":            sess.Error,
		"message":          message,
	})
}

func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.sessions.Get(id, session.Peek)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"valid":   false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"valid":        true,
		"expires_at":   sess.ExpiresAt.Format(time.RFC3339),
		"minutes_left": sess.MinutesLeft(s.now()),
		"status":       sess.Status,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Cleanup(id) {
		writeFailure(w, msgCleanupFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session cleaned up",
	})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if !storage.ValidName(name) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(s.media.PathFor(name))
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", MediaCacheControl)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
