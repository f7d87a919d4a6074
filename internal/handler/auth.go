package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/angkor-mart/storefront/internal/domain/auth"
	"github.com/angkor-mart/storefront/internal/identity"
)

type (
	adminKey    struct{}
	identityKey struct{}
)

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireAdmin admits requests carrying a valid admin JWT.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := h.Admins.Authenticate(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Admin token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), adminKey{}, claims)
		ctx = zctx.With(ctx, zap.String("admin_id", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUser admits requests carrying a valid identity provider token.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := h.Identity.Verify(r.Context(), raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Identity token rejected", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// optionalUser attaches the identity when a valid token is present, so
// signed-in checkouts are linked to the account. Guests pass through.
func (h *Handler) optionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := bearer(r); ok {
			if id, err := h.Identity.Verify(r.Context(), raw); err == nil {
				r = r.WithContext(withIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func withIdentity(ctx context.Context, id *identity.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	return zctx.With(ctx, zap.String("uid", id.UID))
}

func identityFrom(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*identity.Identity)
	return id, ok
}

func adminFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(adminKey{}).(*auth.Claims)
	return c, ok
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type adminResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func toAdminResponse(a *auth.Admin) adminResponse {
	return adminResponse{ID: a.ID, Email: a.Email, Role: auth.RoleAdmin, CreatedAt: a.CreatedAt}
}

type sessionResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Admin     adminResponse `json:"admin"`
}

// Setup creates the first admin account.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	a, err := h.Admins.Setup(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Admin account created", zap.String("admin_id", a.ID))
	writeJSON(w, http.StatusCreated, toAdminResponse(a))
}

// Login exchanges admin credentials for a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	s, err := h.Admins.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Admin:     toAdminResponse(s.Admin),
	})
}

// Me returns the signed-in admin.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := adminFrom(r.Context())
	a, err := h.Admins.Me(r.Context(), claims)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminResponse(a))
}
