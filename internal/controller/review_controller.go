package controller

import (
	"strconv"

	"proofly_backend/internal/model"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReviewController struct {
	Service *service.ReviewService
}

func NewReviewController(svc *service.ReviewService) *ReviewController {
	return &ReviewController{Service: svc}
}

func pathID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid id")
		return 0, false
	}
	return uint(id), true
}

// @Summary Submit a task attempt
// @Tags review
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.SubmitRequest true "submission"
// @Success 201 {object} util.Response
// @Router /api/submissions [post]
func (c *ReviewController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.Submit(user.UserID, req)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Created(ctx, sub)
}

// @Summary Record the evaluator's result for a submission
// @Tags review
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Param body body model.EvaluationResult true "evaluation"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id}/evaluation [post]
func (c *ReviewController) RecordEvaluation(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var ev model.EvaluationResult
	if err := ctx.ShouldBindJSON(&ev); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.RecordEvaluation(id, &ev)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// @Summary Decide a submission
// @Tags review
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Param body body service.DecideRequest true "decision"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id}/decision [post]
func (c *ReviewController) Decide(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.DecideRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	decision, err := c.Service.Decide(id, user.UserID, req)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, decision)
}

// @Summary Add a student explanation
// @Tags review
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id}/explanation [post]
func (c *ReviewController) AddExplanation(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req struct {
		Explanation string `json:"explanation" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sub, err := c.Service.AddExplanation(id, user.UserID, req.Explanation)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// @Summary Appeal a rejection
// @Tags review
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id}/appeal [post]
func (c *ReviewController) Appeal(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	sub, err := c.Service.Appeal(id, user.UserID)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// @Summary Get a submission
// @Tags review
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id} [get]
func (c *ReviewController) GetSubmission(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	sub, err := c.Service.GetSubmission(id)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// @Summary Decision log for a submission
// @Tags review
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "submission ID"
// @Success 200 {object} util.Response
// @Router /api/submissions/{id}/decisions [get]
func (c *ReviewController) DecisionLog(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	log, err := c.Service.DecisionLog(id)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, log)
}

// @Summary Submissions waiting for review
// @Tags review
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "page"
// @Param limit query int false "limit"
// @Success 200 {object} util.Response
// @Router /api/reviewer/queue [get]
func (c *ReviewController) ReviewQueue(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	subs, total, err := c.Service.ReviewQueue(page, limit)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: subs, Total: total, Page: page, Limit: limit})
}
