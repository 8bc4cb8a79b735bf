package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/middleware"
)

type credentialsRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TOTPCode   string `json:"totpCode,omitempty"`
	BackupCode string `json:"backupCode,omitempty"`
}

type sessionResponse struct {
	AccessToken string               `json:"accessToken"`
	CSRFToken   string               `json:"csrfToken"`
	ExpiresIn   int64                `json:"expiresIn"`
	TokenType   string               `json:"tokenType"`
	User        sessioncore.UserView `json:"user"`
}

type codeRequest struct {
	Secret string `json:"secret,omitempty"`
	Code   string `json:"code"`
}

// writeSession sets the refresh and CSRF cookies and returns the access
// token in the body. The refresh token never appears in the body.
func (s *Server) writeSession(w http.ResponseWriter, status int, res *sessioncore.SessionResult) {
	if res.RefreshToken != "" {
		http.SetCookie(w, s.engine.RefreshCookie(res.RefreshToken, res.RefreshExpiresAt))
	}
	http.SetCookie(w, s.engine.CSRFCookie(res.CSRFToken, res.CSRFExpiresAt))
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, status, sessionResponse{
		AccessToken: res.AccessToken,
		CSRFToken:   res.CSRFToken,
		ExpiresIn:   res.ExpiresIn(s.engine.Now()),
		TokenType:   res.TokenType,
		User:        res.User,
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	res, err := s.engine.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	s.writeSession(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	res, err := s.engine.Login(r.Context(), sessioncore.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		BackupCode: req.BackupCode,
	})
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	s.writeSession(w, http.StatusOK, res)
}

// handleRefresh requires the CSRF pair before touching the refresh cookie,
// so a cross-site form post cannot mint tokens.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ValidateCSRF(r.Context(), r, ""); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	c, err := r.Cookie(s.engine.RefreshCookieName())
	if err != nil || c.Value == "" {
		middleware.WriteError(w, s.logger, sessioncore.ErrUnauthorized)
		return
	}
	res, err := s.engine.Refresh(r.Context(), c.Value)
	if err != nil {
		http.SetCookie(w, s.engine.ClearRefreshCookie())
		middleware.WriteError(w, s.logger, err)
		return
	}
	s.writeSession(w, http.StatusOK, res)
}

// handleLogout always answers 200 and clears both cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(s.engine.RefreshCookieName()); err == nil {
		refresh = c.Value
	}
	out := s.engine.Logout(r.Context(), middleware.BearerToken(r), refresh)
	if out.Err != nil {
		s.logger.Warn("logout incomplete", zap.String("user_id", out.UserID), zap.Error(out.Err))
	}
	http.SetCookie(w, s.engine.ClearRefreshCookie())
	http.SetCookie(w, s.engine.ClearCSRFCookie())
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, struct {
		User      sessioncore.UserView `json:"user"`
		SessionID string               `json:"sessionId"`
		ExpiresAt time.Time            `json:"expiresAt"`
	}{
		User:      sessioncore.UserView{ID: p.UserID, Email: p.Email},
		SessionID: p.SessionID,
		ExpiresAt: p.ExpiresAt,
	})
}

func (s *Server) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	enr, err := s.engine.SetupMFA(r.Context(), p.UserID)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, enr)
}

func (s *Server) handleMFAEnable(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	codes, err := s.engine.EnableMFA(r.Context(), p.UserID, req.Secret, req.Code)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"backupCodes": codes})
}

func (s *Server) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	if err := s.engine.DisableMFA(r.Context(), p.UserID, req.Code); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleBackupCodesRemaining(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	n, err := s.engine.RemainingBackupCodes(r.Context(), p.UserID)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]int{"remaining": n})
}

func (s *Server) handleBackupCodesRegenerate(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	codes, err := s.engine.RegenerateBackupCodes(r.Context(), p.UserID, req.Code)
	if err != nil {
		middleware.WriteError(w, s.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"backupCodes": codes})
}
