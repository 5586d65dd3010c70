package access

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
)

// LoginAttemptsPerMinute bounds passcode guesses per client address.
const LoginAttemptsPerMinute = 5

// Handler wires the capability endpoints.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers the access routes. They must sit behind the session
// middleware but not behind RequireCapability.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(LoginAttemptsPerMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many passcode attempts")
		}),
	)
	r.Get("/access/session", h.showSession)
	r.With(limiter).Post("/access/session", h.grant)
	r.Delete("/access/session", h.revoke)
	r.Put("/access/location", h.switchLocation)
}

type grantRequest struct {
	Passcode string `json:"passcode" validate:"required"`
	Location string `json:"location" validate:"required"`
}

type locationRequest struct {
	Location string `json:"location" validate:"required"`
}

type sessionResponse struct {
	Authorized bool               `json:"authorized"`
	Capability *shared.Capability `json:"capability,omitempty"`
	CSRFToken  string             `json:"csrf_token"`
	Locations  []shared.Location  `json:"locations"`
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := sessionResponse{CSRFToken: token, Locations: shared.Locations()}
	if capability, err := h.service.Capability(sess); err == nil {
		resp.Authorized = true
		resp.Capability = &capability
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, ErrInvalidPasscode)
		return
	}
	location, err := shared.ParseLocation(req.Location)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Verify(req.Passcode); err != nil {
		h.logger.Warn("passcode rejected", slog.String("remote", r.RemoteAddr))
		httpx.RespondError(w, err)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if err := h.sessionManager.Rotate(r.Context(), sess); err != nil {
		h.logger.Error("rotate session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	sess.Delete(shared.CSRFSessionKey)
	capability, err := h.service.Grant(sess, location)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		h.logger.Error("ensure csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("capability granted", slog.String("location", string(location)))
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Authorized: true,
		Capability: &capability,
		CSRFToken:  token,
		Locations:  shared.Locations(),
	})
}

func (h *Handler) switchLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	location, err := shared.ParseLocation(req.Location)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	capability, err := h.service.SwitchLocation(shared.SessionFromContext(r.Context()), location)
	if err != nil {
		if !errors.Is(err, httpx.ErrUnauthorized) {
			h.logger.Error("switch location", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, capability)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.service.Revoke(sess)
	h.sessionManager.Destroy(sess)
	w.WriteHeader(http.StatusNoContent)
}
