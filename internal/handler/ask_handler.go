package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plantdeck/plantdeck/internal/compose"
	"github.com/plantdeck/plantdeck/internal/model"
	"github.com/plantdeck/plantdeck/internal/pkg/errcode"
	"github.com/plantdeck/plantdeck/internal/pkg/response"
	"github.com/plantdeck/plantdeck/internal/retrieval"
)

type AskHandler struct {
	engine   *retrieval.Engine
	composer *compose.Composer
}

type AskRequest struct {
	Question     string `json:"question"`
	TopKEntities int    `json:"top_k_entities"`
	Deep         bool   `json:"deep"`
	TopKPassages int    `json:"top_k_passages"`
}

type AskResponse struct {
	Answer      string                   `json:"answer"`
	AnswerHTML  string                   `json:"answer_html"`
	Hits        []model.EntityHit        `json:"hits"`
	Context     []model.EntityAttributes `json:"context"`
	PageContext []model.PassageHit       `json:"page_context"`
	Citations   []model.Citation         `json:"citations"`
}

func NewAskHandler(engine *retrieval.Engine, composer *compose.Composer) *AskHandler {
	return &AskHandler{engine: engine, composer: composer}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	bundle, err := h.engine.Query(c.Request.Context(), retrieval.Request{
		Question:     req.Question,
		TopKEntities: req.TopKEntities,
		Deep:         req.Deep,
		TopKPassages: req.TopKPassages,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	answer, err := h.composer.Answer(c.Request.Context(), req.Question, bundle)
	if err != nil {
		handleError(c, err)
		return
	}
	resp := AskResponse{
		Answer:      answer,
		Hits:        bundle.Hits,
		Context:     bundle.Context,
		PageContext: bundle.PageContext,
		Citations:   bundle.Citations,
	}
	if html, err := compose.RenderHTML(answer); err == nil {
		resp.AnswerHTML = html
	}
	response.Success(c, resp)
}
