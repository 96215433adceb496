// server/internal/api/routes/routes.go
package routes

import (
	"net/http"
	"time"

	"relief-dispatch-api-server/config"
	"relief-dispatch-api-server/internal/api/handlers"
	"relief-dispatch-api-server/internal/api/middleware"
	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/dispatch"
	"relief-dispatch-api-server/internal/geo"
	"relief-dispatch-api-server/internal/location"
	"relief-dispatch-api-server/internal/metrics"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/resolver"
	"relief-dispatch-api-server/internal/socket"
	"relief-dispatch-api-server/internal/store"
	"relief-dispatch-api-server/internal/tracking"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps is everything the router hands to its handlers.
type Deps struct {
	Config      config.Config
	Store       store.Store
	Index       *geo.Index
	Resolver    *resolver.Resolver
	Coordinator *dispatch.Coordinator
	Channel     *location.Channel
	Composer    *tracking.Composer
	Issuer      *auth.Issuer
	Hub         *socket.Hub
	Uploader    handlers.PhotoUploader
}

// SetupRouter wires every route under /api/v1 plus /metrics.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(corsConfig(d.Config.Server.CorsAllowOrigins)))

	authHandler := &handlers.AuthHandler{Users: d.Store, Issuer: d.Issuer}
	requesterHandler := &handlers.RequesterHandler{Requesters: d.Store, Issuer: d.Issuer}
	centreHandler := &handlers.CentreHandler{Centres: d.Store, Index: d.Index, Resolver: d.Resolver}
	requestHandler := &handlers.ReliefRequestHandler{Coordinator: d.Coordinator, Composer: d.Composer}
	dispatchHandler := &handlers.DispatchHandler{Channel: d.Channel, Coordinator: d.Coordinator, Uploader: d.Uploader}
	webSocketHandler := &handlers.WebSocketHandler{Hub: d.Hub, Issuer: d.Issuer}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	authenticate := middleware.Authenticate(d.Issuer)
	device := middleware.RequireDevice(d.Issuer, d.Store)
	staff := middleware.Authorize(models.RoleVolunteer, models.RoleAdmin)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		apiV1.GET("/ws", webSocketHandler.ServeWs)

		// === Public ===
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.GET("/me", authenticate, authHandler.Me)
		}

		apiV1.GET("/relief-centres", centreHandler.ListActive)
		apiV1.POST("/relief-centres/nearest", centreHandler.Nearest)
		apiV1.POST("/route", centreHandler.Route)

		// === Requester devices ===
		requesters := apiV1.Group("/requesters")
		{
			requesters.POST("/register-device", requesterHandler.RegisterDevice)
			requesters.POST("/rotate-token", device, requesterHandler.RotateToken)
		}

		deviceRoutes := apiV1.Group("/relief-requests")
		deviceRoutes.Use(device)
		{
			deviceRoutes.POST("", requestHandler.CreateRequest)
			deviceRoutes.GET("/:id/tracking", requestHandler.GetTracking)
			deviceRoutes.POST("/:id/cancel", requestHandler.CancelByRequester)
		}

		// === Volunteers and admins ===
		apiV1.GET("/relief-centres/:id/requests", authenticate, staff, requestHandler.ListByCentre)

		volunteer := apiV1.Group("/relief-requests")
		volunteer.Use(authenticate, middleware.Authorize(models.RoleVolunteer))
		{
			volunteer.GET("/my-active", requestHandler.MyActive)
			volunteer.POST("/:id/accept", requestHandler.Accept)
			volunteer.PATCH("/:id/status", requestHandler.UpdateStatus)
			volunteer.POST("/:id/release", requestHandler.Release)
			volunteer.POST("/dispatches/:dispatchId/location", dispatchHandler.PushLocation)
			volunteer.POST("/dispatches/:dispatchId/proof", dispatchHandler.UploadProof)
		}
		apiV1.GET("/relief-requests/dispatches/:dispatchId/location", authenticate, staff, dispatchHandler.GetLocation)

		// === Admin ===
		admin := apiV1.Group("/admin")
		admin.Use(authenticate, middleware.Authorize(models.RoleAdmin))
		{
			centres := admin.Group("/relief-centres")
			{
				centres.POST("", centreHandler.CreateCentre)
				centres.GET("", centreHandler.GetAllCentres)
				centres.GET("/:id", centreHandler.GetCentreByID)
				centres.PUT("/:id", centreHandler.UpdateCentre)
				centres.DELETE("/:id", centreHandler.DeleteCentre)
			}
			admin.POST("/relief-requests/:id/cancel", requestHandler.CancelByAdmin)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.DeviceTokenHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
