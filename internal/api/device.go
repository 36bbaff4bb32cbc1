package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wolf-fhs280/internal/heatpump"
	"wolf-fhs280/internal/modbus"

	"github.com/gin-gonic/gin"
)

// DeviceConfigResponse represents the device setup parameters
type DeviceConfigResponse struct {
	Name           string  `json:"name"`
	Hub            string  `json:"hub,omitempty"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	SlaveID        uint8   `json:"slave_id"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	SetpointMax    float64 `json:"setpoint_max"`
	IntervalSecs   float64 `json:"interval_seconds"`
}

// DeviceTestRequest is a connection test against a candidate address
type DeviceTestRequest struct {
	Host           string  `json:"host" binding:"required"`
	Port           int     `json:"port" binding:"required,min=1,max=65535"`
	SlaveID        uint8   `json:"slave_id" binding:"required,min=1,max=247"`
	TimeoutSeconds float64 `json:"timeout_seconds" binding:"omitempty,min=0.5,max=60"`
}

func (s *Server) getDeviceConfigHandler(c *gin.Context) {
	if s.config == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No configuration loaded"})
		return
	}

	d := s.config.Device
	c.JSON(http.StatusOK, DeviceConfigResponse{
		Name:           d.Name,
		Hub:            d.Hub,
		Host:           d.Host,
		Port:           d.Port,
		SlaveID:        d.SlaveID,
		TimeoutSeconds: d.Timeout.Seconds(),
		SetpointMax:    heatpump.ClampSetpointMax(d.SetpointMax),
		IntervalSecs:   s.config.Collector.Interval.Seconds(),
	})
}

// testDeviceConfigHandler opens a throwaway connection and reads the
// setpoint register, the same probe the setup validation uses.
func (s *Server) testDeviceConfigHandler(c *gin.Context) {
	var req DeviceTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "success": false})
		return
	}

	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	value, err := modbus.Probe(c.Request.Context(), modbus.HubConfig{
		Name:    "test",
		URL:     fmt.Sprintf("tcp://%s:%d", req.Host, req.Port),
		Timeout: timeout,
	}, req.SlaveID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"setpoint": value,
		"message":  "Connection successful",
	})
}

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, heatpump.ErrUnknownField):
		return http.StatusNotFound
	case errors.Is(err, heatpump.ErrReadOnly), errors.Is(err, heatpump.ErrOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, heatpump.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
