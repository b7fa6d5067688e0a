package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/retail-banking/internal/auth"
	"github.com/ayo6706/retail-banking/internal/models"
	"github.com/ayo6706/retail-banking/internal/service"
)

type AuthHandler struct {
	svc          *service.AuthService
	cookieSecure bool
}

func NewAuthHandler(svc *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, cookieSecure: cookieSecure}
}

type sessionResponse struct {
	Account   models.Account `json:"account"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		PIN      string `json:"pin"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		PIN:      req.PIN,
	})
	if err != nil {
		writeServiceError(w, r, err, "register account")
		return
	}

	h.setSessionCookie(w, session.SessionID)
	RespondJSON(w, http.StatusCreated, sessionResponse{Account: session.Account, Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid", "username and password are required")
		return
	}

	session, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err, "log in")
		return
	}

	h.setSessionCookie(w, session.SessionID)
	RespondJSON(w, http.StatusOK, sessionResponse{Account: session.Account, Token: session.Token, ExpiresAt: session.ExpiresAt})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account, ok := requestAccount(w, r)
	if !ok {
		return
	}
	if err := h.svc.Logout(r.Context(), account.ID); err != nil {
		writeServiceError(w, r, err, "log out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(h.svc.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
