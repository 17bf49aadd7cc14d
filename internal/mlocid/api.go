package mlocid

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kuitang/mlocid-e2e/internal/errs"
	"github.com/kuitang/mlocid-e2e/internal/logutil"
	"github.com/kuitang/mlocid-e2e/internal/obs"
)

const (
	maxJSONBytes   = 64 << 10
	maxImportBytes = 1 << 20
)

// Response is the JSON envelope of every API answer.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type reviewRequest struct {
	Quality *int `json:"quality"`
}

type importResult struct {
	Imported int `json:"imported"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.CodeOf(err)), Response{Error: errs.MessageOf(err)})
}

// decodeJSON reads a bounded JSON body into dst. Undecodable bodies are
// logged with secrets redacted.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBytes+1))
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "request body is not readable", err)
	}
	if len(body) > maxJSONBytes {
		return errs.New(errs.InvalidArgument, "request body too large")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		obs.From(r.Context()).With("pkg", "mlocid").Debug(
			"request_decode_failed",
			"path", r.URL.Path,
			"body", logutil.Preview(logutil.RedactJSON(r.Header.Get("Content-Type"), body), 512),
			"error", err,
		)
		return errs.Wrap(errs.InvalidArgument, "invalid JSON body", err)
	}
	return nil
}

func cardIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.New(errs.InvalidArgument, "invalid card id")
	}
	return id, nil
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *User) {
	id, expiresAt := s.store.CreateSession(r.Context(), u.ID)
	setSessionCookie(w, id, expiresAt)
}

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.store.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.startSession(w, r, u)
	obs.From(r.Context()).With("pkg", "mlocid").Info("user_registered", "user_id", u.ID, "username", u.Username)
	writeData(w, http.StatusCreated, u)
}

// handleLogin handles POST /api/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.From(r.Context()).With("pkg", "mlocid").Info("login_failed", "username", req.Username)
		writeError(w, err)
		return
	}
	s.startSession(w, r, u)
	writeData(w, http.StatusOK, u)
}

// handleLogout handles POST /api/logout.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := sessionIDFromRequest(r); id != "" {
		s.store.DeleteSession(r.Context(), id)
	}
	clearSessionCookie(w)
	writeData(w, http.StatusOK, nil)
}

// handleUser handles GET /api/user.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, UserFromContext(r.Context()))
}

// handleListCards handles GET /api/flashcards.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	writeData(w, http.StatusOK, s.store.ListCards(r.Context(), u.ID))
}

// handleCreateCard handles POST /api/flashcards.
func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	var in CardInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	cards, err := s.store.CreateCards(r.Context(), u.ID, []CardInput{in})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, cards[0])
}

// handleGetCard handles GET /api/flashcards/{id}.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	id, err := cardIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	card, err := s.store.GetCard(r.Context(), u.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, card)
}

// handleUpdateCard handles PUT /api/flashcards/{id}.
func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	id, err := cardIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in CardInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	card, err := s.store.UpdateCard(r.Context(), u.ID, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, card)
}

// handleDeleteCard handles DELETE /api/flashcards/{id}.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	id, err := cardIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteCard(r.Context(), u.ID, id); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// handleImport handles POST /api/import/mnemosyne. The body is the raw
// tab-separated export.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, errs.New(errs.InvalidArgument, "import text too large"))
			return
		}
		writeError(w, errs.Wrap(errs.InvalidArgument, "request body is not readable", err))
		return
	}
	inputs, err := ParseMnemosyne(string(body))
	if err != nil {
		writeError(w, err)
		return
	}
	cards, err := s.store.CreateCards(r.Context(), u.ID, inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	obs.From(r.Context()).With("pkg", "mlocid").Info("cards_imported", "user_id", u.ID, "count", len(cards))
	writeData(w, http.StatusOK, importResult{Imported: len(cards)})
}

// handleDueCards handles GET /api/study/due.
func (s *Server) handleDueCards(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	writeData(w, http.StatusOK, s.store.DueCards(r.Context(), u.ID))
}

// handleReview handles POST /api/study/review/{id}.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	id, err := cardIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Quality == nil {
		writeError(w, errs.New(errs.InvalidArgument, "quality is required"))
		return
	}
	card, err := s.store.ReviewCard(r.Context(), u.ID, id, *req.Quality)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, card)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
