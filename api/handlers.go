package api

import (
	"errors"
	"net/http"

	"smsrelay/models"
	"smsrelay/service"

	"github.com/gin-gonic/gin"
)

// Connect handles a device registration/heartbeat.
func Connect(c *gin.Context, d *service.RelayDispatcher) {
	var req models.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid request body"))
		return
	}
	if err := d.Heartbeat(req); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("ok"))
}

// GetDevices returns all known devices with their presence state.
func GetDevices(c *gin.Context, d *service.RelayDispatcher) {
	c.JSON(http.StatusOK, models.SuccessResponse(d.ListDevices()))
}

// DrainCommands returns and clears the device's pending commands. The
// response is the bare command array device clients already parse.
func DrainCommands(c *gin.Context, d *service.RelayDispatcher) {
	cmds, err := d.DrainCommands(c.Query("uuid"))
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, cmds)
}

// ReportSMS handles an inbound-message report from a device.
func ReportSMS(c *gin.Context, d *service.RelayDispatcher) {
	var req models.InboundSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid request body"))
		return
	}
	if err := d.InboundSMS(req); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("ok"))
}

// AckCommand handles a command completion report from a device.
func AckCommand(c *gin.Context, d *service.RelayDispatcher) {
	var req models.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid request body"))
		return
	}
	if err := d.Ack(req); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("ok"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
