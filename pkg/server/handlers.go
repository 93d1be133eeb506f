package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/findmykit/trackagent"
	"github.com/findmykit/trackagent/pkg/storage"
)

// handleIndex is the unauthenticated liveness endpoint.
func (s *Server) handleIndex(c *gin.Context) {
	state := s.cfg.Tracker.State()
	resp := gin.H{
		"service":         "trackagent",
		"status":          state.String(),
		"tracking_active": state == trackagent.StateRunning,
		"target":          s.cfg.Tracker.Target(),
	}
	if dev, ok := s.cfg.Tracker.TargetDevice(); ok {
		resp["device"] = dev.Name
	} else {
		resp["device"] = nil
	}
	c.JSON(http.StatusOK, resp)
}

// handleLocation serves the most recent persisted record for the target
// device.
func (s *Server) handleLocation(c *gin.Context) {
	dev, ok := s.cfg.Tracker.TargetDevice()
	if !ok {
		abortError(c, http.StatusNotFound, "no location data found",
			"the tracker has not matched the target device yet")
		return
	}
	rec, err := s.cfg.Records.MostRecentFor(c.Request.Context(), dev.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRecord) {
			abortError(c, http.StatusNotFound, "no location data found",
				fmt.Sprintf("no records persisted yet for %s", dev.Name))
			return
		}
		log.Error().Err(err).Str("device_id", dev.ID).Msg("latest record lookup failed")
		abortError(c, http.StatusInternalServerError, "storage error", err.Error())
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleStatus serves a live provider status call, bypassing the store.
func (s *Server) handleStatus(c *gin.Context) {
	dev, ok := s.cfg.Tracker.TargetDevice()
	if !ok {
		abortError(c, http.StatusNotFound, "target device not resolved",
			"the tracker has not matched the target device yet")
		return
	}
	status, err := s.cfg.Provider.DeviceStatus(c.Request.Context(), dev.ID)
	if err != nil {
		log.Error().Err(err).Str("device_id", dev.ID).Msg("live status fetch failed")
		abortError(c, http.StatusInternalServerError, "provider error", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id":        dev.ID,
		"name":             dev.Name,
		"model":            dev.Model,
		"battery_level":    status.BatteryLevel,
		"battery_status":   status.BatteryStatus,
		"device_status":    status.DeviceStatus,
		"location_enabled": dev.LocationEnabled,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAlarm plays a sound on the target device. Duplicate requests are
// harmless: the vendor gives no at-most-once guarantee anyway.
func (s *Server) handleAlarm(c *gin.Context) {
	dev, ok := s.cfg.Tracker.TargetDevice()
	if !ok {
		abortError(c, http.StatusNotFound, "target device not resolved",
			"the tracker has not matched the target device yet")
		return
	}
	if err := s.cfg.Provider.PlaySound(c.Request.Context(), dev.ID); err != nil {
		log.Error().Err(err).Str("device_id", dev.ID).Msg("play sound failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"error":   "alarm failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   fmt.Sprintf("Alarm triggered on %s", dev.Name),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
