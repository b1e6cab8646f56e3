// Package httpapi exposes the auth core over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"authcore/internal/auth"
)

// refreshCookie is the only place the raw refresh secret travels.
// Path-restricted so browsers send it to the auth surface alone.
const refreshCookie = "refresh_token"

type handler struct {
	log        *zap.Logger
	svc        *auth.Service
	accessTTL  time.Duration
	production bool
}

type accountBody struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionBody struct {
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	ExpiresIn   int         `json:"expiresIn"`
	Account     accountBody `json:"account"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, h.log, &req) {
		return
	}

	account, err := h.svc.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, accountBody{ID: account.ID, Email: account.Email})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		TwoFactorCode string `json:"twoFactorCode"`
	}
	if !decodeBody(w, r, h.log, &req) {
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password, req.TwoFactorCode)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.writeSession(w, session)
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Refresh(r.Context(), h.refreshSecret(r))
	if err != nil {
		h.clearRefreshCookie(w)
		writeError(w, h.log, err)
		return
	}
	h.writeSession(w, session)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context(), h.refreshSecret(r)); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	account, err := h.svc.Account(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	twoFactor, err := h.svc.TwoFactorEnabled(r.Context(), account.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		UserID           string    `json:"userId"`
		Email            string    `json:"email"`
		Admin            bool      `json:"admin"`
		TwoFactorEnabled bool      `json:"twoFactorEnabled"`
		CreatedAt        time.Time `json:"createdAt"`
	}{
		UserID:           account.ID,
		Email:            account.Email,
		Admin:            account.IsAdmin,
		TwoFactorEnabled: twoFactor,
		CreatedAt:        account.CreatedAt,
	})
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, h.log, &req) {
		return
	}

	claims := ClaimsFromContext(r.Context())
	if err := h.svc.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.log, err)
		return
	}
	// Every refresh token died with the old password; drop the cookie.
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	setup, err := h.svc.SetupTwoFactor(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		QRUri       string   `json:"qrUri"`
		ManualKey   string   `json:"manualKey"`
		BackupCodes []string `json:"backupCodes"`
	}{setup.QRUri, setup.ManualKey, setup.BackupCodes})
}

func (h *handler) twoFactorVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeBody(w, r, h.log, &req) {
		return
	}

	claims := ClaimsFromContext(r.Context())
	remaining, err := h.svc.VerifyTwoFactor(r.Context(), claims.Subject, req.Code)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Verified             bool `json:"verified"`
		RemainingBackupCodes int  `json:"remainingBackupCodes"`
	}{true, remaining})
}

func (h *handler) twoFactorDisable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if !decodeBody(w, r, h.log, &req) {
		return
	}

	claims := ClaimsFromContext(r.Context())
	if err := h.svc.DisableTwoFactor(r.Context(), claims.Subject, req.Password, req.Code); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	codes, err := h.svc.RegenerateBackupCodes(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		BackupCodes []string `json:"backupCodes"`
	}{codes})
}

func (h *handler) writeSession(w http.ResponseWriter, session *auth.Session) {
	h.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiry)
	writeJSON(w, http.StatusOK, sessionBody{
		AccessToken: session.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.accessTTL / time.Second),
		Account:     accountBody{ID: session.Account.ID, Email: session.Account.Email},
	})
}

func (h *handler) refreshSecret(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *handler) setRefreshCookie(w http.ResponseWriter, secret string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    secret,
		Path:     "/auth",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.production,
		SameSite: http.SameSiteLaxMode,
	})
}
