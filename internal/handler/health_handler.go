package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/plantdeck/plantdeck/internal/pkg/response"
	"github.com/plantdeck/plantdeck/internal/retrieval"
)

type HealthHandler struct {
	engine          *retrieval.Engine
	imagesAvailable func() bool
}

type HealthResponse struct {
	OK              bool   `json:"ok"`
	Model           string `json:"model"`
	DeepAvailable   bool   `json:"deep_available"`
	ImagesAvailable bool   `json:"images_available"`
}

func NewHealthHandler(engine *retrieval.Engine, imagesAvailable func() bool) *HealthHandler {
	return &HealthHandler{engine: engine, imagesAvailable: imagesAvailable}
}

func (h *HealthHandler) Health(c *gin.Context) {
	images := false
	if h.imagesAvailable != nil {
		images = h.imagesAvailable()
	}
	response.Success(c, HealthResponse{
		OK:              true,
		Model:           h.engine.ModelVersion(),
		DeepAvailable:   h.engine.DeepAvailable(),
		ImagesAvailable: images,
	})
}
