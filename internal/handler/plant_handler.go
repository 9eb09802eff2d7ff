package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/plantdeck/plantdeck/internal/pkg/errcode"
	"github.com/plantdeck/plantdeck/internal/pkg/response"
	"github.com/plantdeck/plantdeck/internal/store"
)

type PlantHandler struct {
	store *store.SpeciesStore
}

func NewPlantHandler(s *store.SpeciesStore) *PlantHandler {
	return &PlantHandler{store: s}
}

type PlantListResponse struct {
	Plants []string `json:"plants"`
}

func (h *PlantHandler) List(c *gin.Context) {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid limit")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid offset")
		return
	}
	plants, err := h.store.ListSpecies(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	if plants == nil {
		plants = []string{}
	}
	response.Success(c, PlantListResponse{Plants: plants})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}
