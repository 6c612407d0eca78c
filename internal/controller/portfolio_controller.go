package controller

import (
	"strconv"

	"proofly_backend/internal/model"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PortfolioController struct {
	Service *service.PortfolioService
}

func NewPortfolioController(svc *service.PortfolioService) *PortfolioController {
	return &PortfolioController{Service: svc}
}

// @Summary A student's verified portfolio
// @Tags portfolio
// @Produce json
// @Param id path int true "student ID"
// @Success 200 {object} util.Response
// @Router /api/portfolio/{id} [get]
func (c *PortfolioController) Get(ctx *gin.Context) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || id <= 0 {
		util.BadRequest(ctx, "invalid id")
		return
	}

	// 本人和平台角色可以查看未公开的作品集
	allowPrivate := false
	if user := util.GetUserFromContext(ctx); user != nil {
		allowPrivate = user.UserID == uint(id) || user.Role != model.Student
	}

	p, err := c.Service.Get(uint(id), allowPrivate)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, p)
}

// @Summary Compare candidates by verified skills and trust score
// @Tags portfolio
// @Produce json
// @Security ApiKeyAuth
// @Param skills query []string false "required skills"
// @Param minTrustScore query int false "minimum trust score"
// @Param verificationLevel query string false "required verification status"
// @Success 200 {object} util.Response
// @Router /api/recruiter/candidates [get]
func (c *PortfolioController) Candidates(ctx *gin.Context) {
	var filter service.CandidateFilter
	if err := ctx.ShouldBindQuery(&filter); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	candidates, err := c.Service.Compare(filter)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, candidates)
}
