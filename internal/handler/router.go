package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Ask    *AskHandler
	Plants *PlantHandler
	Images *ImageHandler
	Health *HealthHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Health)
	api.GET("/plants", deps.Plants.List)
	api.POST("/ask", deps.Ask.Ask)
	api.GET("/images/:name", deps.Images.Get)
}
