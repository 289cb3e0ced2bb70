// Package router wires the HTTP routes for the trip aggregation service.
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/handlers"
)

// Dependencies holds the handlers the router mounts.
type Dependencies struct {
	Config          *config.ServerConfig
	TripHandler     *handlers.TripHandler
	RegistryHandler *handlers.RegistryHandler
}

// New builds the gin engine with CORS, health, metrics and the v1 API.
func New(deps Dependencies) *gin.Engine {
	if deps.Config.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": deps.Config.Version})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		trips := v1.Group("/trips")
		{
			trips.POST("", deps.TripHandler.CreateTrip)
			trips.GET("", deps.TripHandler.ListTrips)
			trips.GET("/:id", deps.TripHandler.GetTrip)
			trips.PUT("/:id", deps.TripHandler.UpdateTrip)
			trips.POST("/:id/merge-candidates/detect", deps.TripHandler.DetectMergeCandidates)
		}

		reg := v1.Group("/registry")
		{
			reg.GET("/summary", deps.RegistryHandler.Summary)
			reg.GET("/suggested-indexes", deps.RegistryHandler.SuggestIndexes)
			reg.GET("/fields", deps.RegistryHandler.ListFields)
		}
	}

	return r
}
