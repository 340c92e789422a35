package api

import (
	"smsrelay/service"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires the device-facing HTTP boundary. Paths match what
// deployed device clients already call, so they live at the root rather
// than under an /api group.
func SetupRoutes(router *gin.Engine, d *service.RelayDispatcher, hub *DeviceHub) {
	router.Use(CORSMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/connect", func(c *gin.Context) {
		Connect(c, d)
	})
	router.GET("/devices", func(c *gin.Context) {
		GetDevices(c, d)
	})
	router.GET("/commands", func(c *gin.Context) {
		DrainCommands(c, d)
	})
	router.POST("/sms", func(c *gin.Context) {
		ReportSMS(c, d)
	})
	router.POST("/ack", func(c *gin.Context) {
		AckCommand(c, d)
	})

	// Push-transport variant
	router.GET("/ws", func(c *gin.Context) {
		HandleDeviceSocket(hub, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
