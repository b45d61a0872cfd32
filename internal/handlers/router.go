package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
	"skimeister/internal/ratelimit"
)

// NewRouter builds the gin engine with the public and admin routes
func NewRouter(cfg config.ServerConfig, resorts *ResortHandler, admin *AdminHandler, limiter *ratelimit.RateLimiter, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}
	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	if cfg.Pprof {
		pprof.Register(r)
	}

	r.GET("/health", resorts.Health)

	api := r.Group("/api")
	{
		api.GET("/resorts", resorts.ListResorts)
		api.GET("/search", resorts.Search)
		api.GET("/resort/:id", resorts.GetResort)
		api.GET("/resort/:id/history", resorts.GetHistory)
		api.GET("/stats", resorts.GetStats)
	}

	if admin != nil {
		group := r.Group("/api/admin")
		scrapeLimited := []gin.HandlerFunc{}
		if limiter != nil {
			scrapeLimited = append(scrapeLimited, RateLimitMiddleware(limiter))
		}
		{
			group.GET("/stats", admin.GetStats)
			group.POST("/scrape", append(scrapeLimited, admin.TriggerScrape)...)
			group.POST("/scrape/resort/:slug", append(scrapeLimited, admin.ScrapeResort)...)
			group.GET("/scrape/status", admin.GetScrapeStatus)
			group.GET("/scrape/runs", admin.GetScrapeRuns)
			group.GET("/cache/stats", admin.GetCacheStats)
			group.GET("/ratelimit/stats", admin.GetRateLimitStats)
			group.POST("/cleanup", admin.RunCleanup)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
