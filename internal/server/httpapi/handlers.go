package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/server/models"
	"github.com/akimychev/converse/internal/server/services"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type turnResponse struct {
	Seq       int64     `json:"seq"`
	Utterance string    `json:"utterance"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionDetailResponse struct {
	Session sessionResponse `json:"session"`
	Turns   []turnResponse  `json:"turns"`
}

type turnResultResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}

	user, err := s.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		s.writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleToken is the login endpoint. It takes a form body with username and
// password fields; the username field carries a username or an email.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	login := r.PostFormValue("username")
	password := r.PostFormValue("password")

	pair, err := s.users.Login(r.Context(), login, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "incorrect username or password")
			return
		}
		s.writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pair, err := s.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) || errors.Is(err, common.ErrRefreshTokenExpired) {
			writeUnauthorized(w)
			return
		}
		s.writeInternalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	if err := s.users.DeleteAccount(r.Context(), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	list, err := s.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	sessionID := r.PathValue("id")

	detail, err := s.sessions.GetSessionDetail(r.Context(), userID, sessionID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := sessionDetailResponse{Session: toSessionResponse(detail.Session), Turns: []turnResponse{}}
	for _, turn := range detail.Turns {
		out.Turns = append(out.Turns, turnResponse{
			Seq:       turn.Seq,
			Utterance: turn.Utterance,
			Reply:     turn.Reply,
			CreatedAt: turn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	sessionID := r.PathValue("id")

	if err := s.sessions.DeleteSession(r.Context(), userID, sessionID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTextTurn(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	sessionID := r.PathValue("id")

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	text := r.PostFormValue("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := s.chat.ProcessTextTurn(r.Context(), userID, sessionID, text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResultResponse(result))
}

func (s *Server) handleDocumentTurn(w http.ResponseWriter, r *http.Request) {
	s.handleUploadTurn(w, r, s.chat.ProcessDocumentTurn)
}

func (s *Server) handleImageTurn(w http.ResponseWriter, r *http.Request) {
	s.handleUploadTurn(w, r, s.chat.ProcessImageTurn)
}

type uploadTurnFunc func(ctx context.Context, ownerID, sessionID, text string, upload services.Upload) (*services.TurnResult, error)

func (s *Server) handleUploadTurn(w http.ResponseWriter, r *http.Request, process uploadTurnFunc) {
	userID, _ := UserIDFromContext(r.Context())
	sessionID := r.PathValue("id")

	// hard cap the request body before parsing the multipart form
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+formOverheadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid or oversize upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid or oversize upload")
		return
	}

	upload := services.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}
	text := r.PostFormValue("text")

	result, err := process(r.Context(), userID, sessionID, text, upload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResultResponse(result))
}

// formOverheadBytes leaves room for multipart boundaries and the text field
// on top of the file-size limit.
const formOverheadBytes = 64 * 1024

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Username: u.UserName, Email: u.Email, CreatedAt: u.CreatedAt}
}

func toSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt}
}

func toTurnResultResponse(r *services.TurnResult) turnResultResponse {
	return turnResultResponse{Reply: r.Reply, SessionID: r.SessionID, Title: r.Title}
}
