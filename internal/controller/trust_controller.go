package controller

import (
	"strconv"

	"proofly_backend/internal/model"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TrustController struct {
	Service *service.TrustService
}

func NewTrustController(svc *service.TrustService) *TrustController {
	return &TrustController{Service: svc}
}

func (c *TrustController) targetStudent(ctx *gin.Context) (uint, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return 0, false
	}
	// 学生只能查看自己的分数
	if raw := ctx.Query("studentId"); raw != "" && user.Role != model.Student {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			util.BadRequest(ctx, "invalid studentId")
			return 0, false
		}
		return uint(id), true
	}
	return user.UserID, true
}

// @Summary Current trust score
// @Tags trust
// @Produce json
// @Security ApiKeyAuth
// @Param studentId query int false "student ID (reviewers and recruiters only)"
// @Success 200 {object} util.Response
// @Router /api/trust/score [get]
func (c *TrustController) GetScore(ctx *gin.Context) {
	studentID, ok := c.targetStudent(ctx)
	if !ok {
		return
	}

	score, err := c.Service.GetScore(studentID)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, score)
}

// @Summary Trust center: score, factor breakdown, history and improvement paths
// @Tags trust
// @Produce json
// @Security ApiKeyAuth
// @Param studentId query int false "student ID (reviewers and recruiters only)"
// @Success 200 {object} util.Response
// @Router /api/trust/center [get]
func (c *TrustController) TrustCenter(ctx *gin.Context) {
	studentID, ok := c.targetStudent(ctx)
	if !ok {
		return
	}

	payload, err := c.Service.TrustCenter(studentID)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, payload)
}

// @Summary Recompute a trust score from its full history
// @Tags trust
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "student ID"
// @Success 200 {object} util.Response
// @Router /api/admin/trust/{id}/recompute [post]
func (c *TrustController) Recompute(ctx *gin.Context) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid id")
		return
	}

	score, err := c.Service.Recompute(uint(id))
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, score)
}
