package client

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/photosync/internal/client/handlers"
	"github.com/openmined/photosync/internal/client/middleware"
	photosync "github.com/openmined/photosync/internal/client/sync"
	"github.com/openmined/photosync/internal/client/wshub"
	"github.com/openmined/photosync/internal/version"
)

//go:embed static/index.html
var indexHTML []byte

type RouteConfig struct {
	AuthToken string
	RateLimit string
}

func SetupRoutes(mgr *photosync.Manager, hub *wshub.Hub, routeConfig *RouteConfig) (http.Handler, error) {
	r := gin.New()

	rate := routeConfig.RateLimit
	if rate == "" {
		rate = DefaultRateLimit
	}
	rateLimiter, err := middleware.RateLimiter(rate)
	if err != nil {
		return nil, err
	}

	configH := handlers.NewConfigHandler(mgr.Config())
	statsH := handlers.NewStatsHandler(mgr.Config(), mgr.Progress())
	statusH := handlers.NewStatusHandler(mgr.Progress())
	syncH := handlers.NewSyncHandler(mgr)
	healthH := handlers.NewHealthHandler(mgr.Config())

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.SecureHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())

	r.GET("/", IndexHandler)
	r.GET("/version", VersionHandler)

	auth := middleware.TokenAuth(middleware.TokenAuthConfig{Token: routeConfig.AuthToken})

	api := r.Group("/api")
	api.Use(rateLimiter, auth)
	{
		api.GET("/config", configH.Get)
		api.POST("/config", configH.Update)
		api.GET("/stats", statsH.Stats)
		api.GET("/status", statusH.Status)
		api.GET("/health", healthH.Health)

		apiSync := api.Group("/sync")
		{
			apiSync.POST("", syncH.Start)
			apiSync.POST("/cancel", syncH.Cancel)
		}
	}

	r.GET("/ws", auth, hub.Handler)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler(), nil
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func VersionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, version.Detailed())
}
