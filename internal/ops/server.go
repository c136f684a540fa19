// Package ops exposes a small operator HTTP API next to the bot: health,
// issuance statistics and the user roster. It is guarded by a static
// bearer token and listens only when configured.
package ops

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nevskii/vpnkeybot/internal/issuance"
	"github.com/nevskii/vpnkeybot/internal/ledger"
	"github.com/nevskii/vpnkeybot/internal/registry"
)

// Handler serves the operator endpoints.
type Handler struct {
	service  *issuance.Service
	registry *registry.Registry
	ledger   *ledger.Ledger
}

// NewHandler constructs a Handler.
func NewHandler(service *issuance.Service, reg *registry.Registry, led *ledger.Ledger) *Handler {
	return &Handler{service: service, registry: reg, ledger: led}
}

// NewRouter builds the gin engine with all operator routes registered.
// Every route except /healthz requires the bearer token.
func NewRouter(token string, h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Healthz)

	authed := r.Group("/v0/ops")
	authed.Use(TokenAuthMiddleware(token))
	authed.GET("/stats", h.Stats)
	authed.GET("/users", h.Users)

	return r
}

// TokenAuthMiddleware rejects requests that do not carry the configured
// bearer token.
func TokenAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

// Healthz probes the state store and reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	if _, err := h.service.Stats(); err != nil {
		log.WithError(err).Error("health probe failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Stats returns pool, ledger and roster totals.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats()
	if err != nil {
		log.WithError(err).Error("stats query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	authorized, err := h.registry.Authorized()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	banned, err := h.registry.Banned()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"remaining":        stats.Remaining,
		"total_issued":     stats.TotalIssued,
		"authorized_users": len(authorized),
		"banned_users":     len(banned),
	})
}

// userEntry is one row of the user roster.
type userEntry struct {
	UserID int64 `json:"user_id"`
	Issued int   `json:"issued"`
}

// Users returns the authorized and banned rosters with issued counts.
func (h *Handler) Users(c *gin.Context) {
	authorized, err := h.registry.Authorized()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "roster unavailable"})
		return
	}
	banned, err := h.registry.Banned()
	if err != nil {
		log.WithError(err).Error("roster query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "roster unavailable"})
		return
	}

	out := gin.H{
		"authorized": h.entries(authorized),
		"banned":     h.entries(banned),
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) entries(ids []int64) []userEntry {
	entries := make([]userEntry, 0, len(ids))
	for _, id := range ids {
		issued, err := h.ledger.CountFor(id)
		if err != nil {
			log.WithError(err).WithField("user_id", id).Warn("issued count lookup failed")
		}
		entries = append(entries, userEntry{UserID: id, Issued: issued})
	}
	return entries
}
