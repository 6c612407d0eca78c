package controller

import (
	"proofly_backend/internal/model"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DefenseController struct {
	Service *service.DefenseService
}

func NewDefenseController(svc *service.DefenseService) *DefenseController {
	return &DefenseController{Service: svc}
}

// @Summary Get a defense session with its questions
// @Tags defense
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session ID"
// @Success 200 {object} util.Response
// @Router /api/defense-sessions/{id} [get]
func (c *DefenseController) Get(ctx *gin.Context) {
	sess, err := c.Service.Get(ctx.Param("id"))
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// @Summary Start a scheduled defense session
// @Tags defense
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session ID"
// @Success 200 {object} util.Response
// @Router /api/defense-sessions/{id}/start [post]
func (c *DefenseController) Start(ctx *gin.Context) {
	sess, err := c.Service.Start(ctx.Param("id"))
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// @Summary Record the active question's answer and move to the next one
// @Tags defense
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session ID"
// @Success 200 {object} util.Response
// @Router /api/defense-sessions/{id}/advance [post]
func (c *DefenseController) Advance(ctx *gin.Context) {
	var req struct {
		Answer string `json:"answer" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sess, err := c.Service.Advance(ctx.Param("id"), req.Answer, req.Notes)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}

// @Summary Complete a defense session with an outcome
// @Tags defense
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "session ID"
// @Success 200 {object} util.Response
// @Router /api/defense-sessions/{id}/complete [post]
func (c *DefenseController) Complete(ctx *gin.Context) {
	var req struct {
		Outcome  string `json:"outcome" binding:"required"`
		Feedback string `json:"feedback"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sess, err := c.Service.Complete(ctx.Param("id"), model.DefenseOutcome(req.Outcome), req.Feedback)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sess)
}
