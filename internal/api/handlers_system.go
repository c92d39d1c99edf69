package api

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/warden/warden/internal/config"
	"github.com/warden/warden/internal/updater"
)

// SystemHandler handles system and configuration endpoints
type SystemHandler struct {
	config *config.Manager
	upd    *updater.Updater
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(cfg *config.Manager, upd *updater.Updater) *SystemHandler {
	return &SystemHandler{config: cfg, upd: upd}
}

// SystemInfo is a point-in-time snapshot of the host.
type SystemInfo struct {
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Platform    string  `json:"platform"`
	KernelVer   string  `json:"kernel_version"`
	Uptime      uint64  `json:"uptime"`
	NumCPU      int     `json:"num_cpu"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemTotal    uint64  `json:"mem_total"`
	MemUsed     uint64  `json:"mem_used"`
	MemPercent  float64 `json:"mem_percent"`
	GoVersion   string  `json:"go_version"`
	ServiceName string  `json:"service_name"`
}

// GetSystemInfo godoc
// @Summary Get host information
// @Description Returns a snapshot of the host the service runs on
// @Tags system
// @Produce json
// @Success 200 {object} SystemInfo
// @Router /api/v1/system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfo{
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		ServiceName: h.config.Get().Service.Name,
	}

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.KernelVer = hi.KernelVersion
		info.Uptime = hi.Uptime
	}
	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotal = vm.Total
		info.MemUsed = vm.Used
		info.MemPercent = vm.UsedPercent
	}

	c.JSON(http.StatusOK, info)
}

// GetConfig godoc
// @Summary Get the active configuration
// @Tags system
// @Produce json
// @Success 200 {object} config.Config
// @Router /api/v1/config [get]
func (h *SystemHandler) GetConfig(c *gin.Context) {
	cfg := *h.config.Get()
	// Never expose credentials over the API.
	cfg.Auth.Password = ""
	c.JSON(http.StatusOK, cfg)
}

// ReloadConfig godoc
// @Summary Reload the configuration file
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/config/reload [post]
func (h *SystemHandler) ReloadConfig(c *gin.Context) {
	if err := h.config.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "configuration reloaded"})
}

// ConfigOverride is a stored configuration override.
type ConfigOverride struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value" binding:"required"`
}

// SetConfigOverride godoc
// @Summary Store a configuration override
// @Description Persists an override applied on top of the file at every load
// @Tags system
// @Accept json
// @Produce json
// @Param override body ConfigOverride true "Override to store"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/config/override [put]
func (h *SystemHandler) SetConfigOverride(c *gin.Context) {
	var override ConfigOverride
	if err := c.ShouldBindJSON(&override); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch override.Key {
	case "server.port", "auth.enabled":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown override key %q", override.Key)})
		return
	}

	if err := h.config.SetOverride(override.Key, override.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "override stored"})
}

// CheckUpdate godoc
// @Summary Check for a newer release
// @Tags system
// @Produce json
// @Success 200 {object} updater.UpdateInfo
// @Failure 500 {object} map[string]string
// @Router /api/v1/update/check [get]
func (h *SystemHandler) CheckUpdate(c *gin.Context) {
	info, err := h.upd.CheckForUpdate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// ApplyUpdate godoc
// @Summary Apply the latest release
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/update/apply [post]
func (h *SystemHandler) ApplyUpdate(c *gin.Context) {
	if err := h.upd.Apply(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "update applied, restart to take effect"})
}

// GetVersion godoc
// @Summary Get the running version
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/version [get]
func (h *SystemHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.upd.GetVersion()})
}
