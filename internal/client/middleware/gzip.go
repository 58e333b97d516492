package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	// websocket upgrades must reach the handler with an unwrapped writer
	excludedPaths = []string{
		"/ws",
		"/api/health",
	}
	excludedExtensions = []string{
		".png", ".gif", ".jpeg", ".jpg", ".heic", ".mp4", ".mov",
	}
)

func Gzip() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.DefaultCompression,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
