package rest

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/walletforge/privy-proxy/internal/domain"
	appCtx "github.com/walletforge/privy-proxy/internal/pkg/context"
	"github.com/walletforge/privy-proxy/internal/pkg/logger"
	"github.com/walletforge/privy-proxy/internal/service"
	"github.com/walletforge/privy-proxy/internal/transport/rest/response"
)

type Handler struct {
	svc *service.ProxyService
	env string
}

func NewHandler(svc *service.ProxyService, env string) *Handler {
	return &Handler{svc: svc, env: env}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.env,
	})
}

// Login redirects the browser to the platform's authorize URL. The state
// parameter is generated but not verified on callback; the callback contract
// takes only the code.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}
	http.Redirect(w, r, h.svc.LoginURL(state), http.StatusFound)
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing code", map[string]string{
			"code": "required",
		})
		return
	}

	token, err := h.svc.Login(r.Context(), code)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"message": "Logged in successfully",
		"token":   token,
	})
}

func (h *Handler) SessionToken(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing user_id", map[string]string{
			"user_id": "required",
		})
		return
	}

	token, err := h.svc.SessionToken(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"token": token,
	})
}

func (h *Handler) SetActiveWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string `json:"user_id"`
		WalletAddress string `json:"wallet_address"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if req.UserID == "" || req.WalletAddress == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing fields", map[string]string{
			"user_id":        "required",
			"wallet_address": "required",
		})
		return
	}

	if err := h.svc.SetActiveWallet(r.Context(), req.UserID, req.WalletAddress); err != nil {
		handleErr(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"message": "Active wallet updated",
	})
}

func (h *Handler) GetActiveWallet(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing user_id", map[string]string{
			"user_id": "required",
		})
		return
	}

	addr, err := h.svc.GetActiveWallet(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"active_wallet": addr,
	})
}

func (h *Handler) RegisterWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing user_id", map[string]string{
			"user_id": "required",
		})
		return
	}

	addr, err := h.svc.RegisterWallet(r.Context(), req.UserID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"wallet_address": addr,
	})
}

func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		fail(w, r, http.StatusBadRequest, "request.invalid", "missing user_id", map[string]string{
			"user_id": "required",
		})
		return
	}

	records, err := h.svc.ListWallets(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}

	type walletView struct {
		WalletAddress string `json:"wallet_address"`
		IsActive      bool   `json:"is_active"`
	}
	wallets := make([]walletView, 0, len(records))
	for _, rec := range records {
		wallets = append(wallets, walletView{
			WalletAddress: rec.WalletAddress,
			IsActive:      rec.IsActive,
		})
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"wallets": wallets,
	})
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		fail(w, r, http.StatusNotFound, "wallet.not_found", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrNoActiveWallet):
		fail(w, r, http.StatusNotFound, "wallet.no_active", err.Error(), nil)
		return
	case errors.Is(err, domain.ErrSessionNotFound):
		fail(w, r, http.StatusNotFound, "session.not_found", err.Error(), nil)
		return

	case errors.Is(err, domain.ErrAuthExchange):
		logger.WithCtx(r.Context()).Error().Err(err).Msg("authorization code exchange failed")
		fail(w, r, http.StatusInternalServerError, "auth.exchange_failed", "authorization exchange failed", nil)
		return
	case errors.Is(err, domain.ErrProfileFetch):
		logger.WithCtx(r.Context()).Error().Err(err).Msg("profile fetch failed")
		fail(w, r, http.StatusInternalServerError, "auth.profile_failed", "profile fetch failed", nil)
		return
	case errors.Is(err, domain.ErrDirectory):
		logger.WithCtx(r.Context()).Error().Err(err).Msg("directory request failed")
		fail(w, r, http.StatusInternalServerError, "directory.unavailable", "identity directory failed", nil)
		return

	default:
		// Storage and other collaborator failures: log detail, return short.
		logger.WithCtx(r.Context()).Error().Err(err).Msg("request failed")
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
		return
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
