package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/warden/warden/internal/config"
	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/service"
	"github.com/warden/warden/internal/storage"
	"github.com/warden/warden/internal/supervisor"
)

// ServiceHandler handles supervised service endpoints
type ServiceHandler struct {
	config *config.Manager
	sup    *supervisor.Supervisor
	store  *storage.Storage
}

// NewServiceHandler creates a new service handler
func NewServiceHandler(cfg *config.Manager, sup *supervisor.Supervisor, store *storage.Storage) *ServiceHandler {
	return &ServiceHandler{config: cfg, sup: sup, store: store}
}

// plan builds the provisioning plan from the current configuration.
func (h *ServiceHandler) plan() supervisor.Plan {
	cfg := h.config.Get()
	return supervisor.Plan{
		Definition:   cfg.Definition(),
		OpenFirewall: cfg.Firewall.Enabled,
		Rule:         cfg.Rule(),
	}
}

// Get godoc
// @Summary Get the supervised service definition
// @Description Returns the registered definition as the OS reports it
// @Tags service
// @Produce json
// @Success 200 {object} service.Info
// @Failure 404 {object} map[string]string
// @Router /api/v1/service [get]
func (h *ServiceHandler) Get(c *gin.Context) {
	info, err := h.sup.Query(h.config.Get().Service.Name)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// Status godoc
// @Summary Get live service status
// @Description Returns the OS view of the service merged with a live process snapshot
// @Tags service
// @Produce json
// @Success 200 {object} supervisor.Status
// @Failure 404 {object} map[string]string
// @Router /api/v1/service/status [get]
func (h *ServiceHandler) Status(c *gin.Context) {
	status, err := h.sup.Status(h.config.Get().Service.Name)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Provision godoc
// @Summary Provision the supervised service
// @Description Registers the service, applies the restart policy, opens the firewall port and starts it
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/service/provision [post]
func (h *ServiceHandler) Provision(c *gin.Context) {
	plan := h.plan()
	h.audit(c, "provision", plan.Definition.Name)

	if err := h.sup.Provision(plan); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "service provisioned"})
}

// Deprovision godoc
// @Summary Remove the supervised service
// @Description Stops and deletes the service and removes its firewall rule
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/service [delete]
func (h *ServiceHandler) Deprovision(c *gin.Context) {
	plan := h.plan()
	h.audit(c, "deprovision", plan.Definition.Name)

	if err := h.sup.Deprovision(plan); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "service removed"})
}

// Start godoc
// @Summary Start the supervised service
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/service/start [post]
func (h *ServiceHandler) Start(c *gin.Context) {
	h.lifecycle(c, "start", h.sup.Start, "service started")
}

// Stop godoc
// @Summary Stop the supervised service
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/service/stop [post]
func (h *ServiceHandler) Stop(c *gin.Context) {
	h.lifecycle(c, "stop", h.sup.Stop, "service stopped")
}

// Restart godoc
// @Summary Restart the supervised service
// @Tags service
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/service/restart [post]
func (h *ServiceHandler) Restart(c *gin.Context) {
	h.lifecycle(c, "restart", h.sup.Restart, "service restarted")
}

// Kill godoc
// @Summary Force-terminate the service process
// @Description Kills the process directly, bypassing the service manager
// @Tags service
// @Produce json
// @Param force query bool false "Send a hard kill instead of terminate"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/service/kill [post]
func (h *ServiceHandler) Kill(c *gin.Context) {
	name := h.config.Get().Service.Name
	h.audit(c, "kill", name)

	force := c.Query("force") == "true"
	if err := h.sup.Kill(name, force); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "process killed"})
}

// Journal godoc
// @Summary Get the provision journal
// @Description Returns recorded provisioning step outcomes, oldest first
// @Tags service
// @Produce json
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} storage.JournalEntry
// @Failure 500 {object} map[string]string
// @Router /api/v1/journal [get]
func (h *ServiceHandler) Journal(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	entries, err := h.sup.Journal(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []storage.JournalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *ServiceHandler) lifecycle(c *gin.Context, action string, fn func(string) error, msg string) {
	name := h.config.Get().Service.Name
	h.audit(c, action, name)

	if err := fn(name); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *ServiceHandler) audit(c *gin.Context, action, resource string) {
	if h.store == nil {
		return
	}
	h.store.AppendAudit(storage.AuditEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Resource:  resource,
		IP:        c.ClientIP(),
	})
}

// statusFor maps the capability sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, firewall.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
