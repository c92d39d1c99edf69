package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/warden/warden/internal/config"
	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/storage"
)

// FirewallHandler handles inbound allow-rule endpoints
type FirewallHandler struct {
	config  *config.Manager
	manager firewall.Manager
	store   *storage.Storage
}

// NewFirewallHandler creates a new firewall handler
func NewFirewallHandler(cfg *config.Manager, manager firewall.Manager, store *storage.Storage) *FirewallHandler {
	return &FirewallHandler{config: cfg, manager: manager, store: store}
}

// available rejects the request when no firewall backend exists on this
// platform. The rest of the API keeps working without one.
func (h *FirewallHandler) available(c *gin.Context) bool {
	if h.manager == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": firewall.ErrUnsupported.Error()})
		return false
	}
	return true
}

// Get godoc
// @Summary Get the configured inbound rule
// @Description Returns the rule and whether it is present in the OS rule table
// @Tags firewall
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /api/v1/firewall/rule [get]
func (h *FirewallHandler) Get(c *gin.Context) {
	if !h.available(c) {
		return
	}
	rule := h.config.Get().Rule()

	exists, err := h.manager.Exists(rule)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule": rule, "exists": exists})
}

// Ensure godoc
// @Summary Ensure the inbound rule exists
// @Description Adds the configured allow-rule; a second call is a no-op
// @Tags firewall
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/firewall/rule [post]
func (h *FirewallHandler) Ensure(c *gin.Context) {
	if !h.available(c) {
		return
	}
	rule := h.config.Get().Rule()
	h.audit(c, "firewall_ensure", rule)

	if err := h.manager.EnsureInbound(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule present"})
}

// Remove godoc
// @Summary Remove the inbound rule
// @Tags firewall
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/firewall/rule [delete]
func (h *FirewallHandler) Remove(c *gin.Context) {
	if !h.available(c) {
		return
	}
	rule := h.config.Get().Rule()
	h.audit(c, "firewall_remove", rule)

	if err := h.manager.Remove(rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule removed"})
}

func (h *FirewallHandler) audit(c *gin.Context, action string, rule firewall.Rule) {
	if h.store == nil {
		return
	}
	h.store.AppendAudit(storage.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Resource:  rule.Name,
		IP:        c.ClientIP(),
	})
}
