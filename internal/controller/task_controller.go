package controller

import (
	"strconv"

	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TaskController struct {
	Service *service.TaskService
}

func NewTaskController(svc *service.TaskService) *TaskController {
	return &TaskController{Service: svc}
}

// @Summary Create a task template
// @Tags task
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body service.TaskTemplateRequest true "template"
// @Success 201 {object} util.Response
// @Router /api/tasks/templates [post]
func (c *TaskController) CreateTemplate(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.TaskTemplateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.Service.CreateTemplate(user.UserID, req)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Created(ctx, tpl)
}

// @Summary Activate or retire a task template
// @Tags task
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "template ID"
// @Success 200 {object} util.Response
// @Router /api/tasks/templates/{id}/active [put]
func (c *TaskController) SetTemplateActive(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	tpl, err := c.Service.SetTemplateActive(id, *req.Active)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, tpl)
}

// @Summary List task templates
// @Tags task
// @Produce json
// @Security ApiKeyAuth
// @Param activeOnly query bool false "only active templates"
// @Param page query int false "page"
// @Param limit query int false "limit"
// @Success 200 {object} util.Response
// @Router /api/tasks/templates [get]
func (c *TaskController) ListTemplates(ctx *gin.Context) {
	activeOnly := ctx.DefaultQuery("activeOnly", "true") == "true"
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	templates, total, err := c.Service.ListTemplates(activeOnly, page, limit)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: templates, Total: total, Page: page, Limit: limit})
}

// @Summary Start a per-student variant of a task template
// @Tags task
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "template ID"
// @Success 201 {object} util.Response
// @Router /api/tasks/templates/{id}/variants [post]
func (c *TaskController) StartVariant(ctx *gin.Context) {
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
		Seed string `json:"seed"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		util.BadRequest(ctx, err.Error())
		return
	}

	variant, err := c.Service.StartVariant(id, user.UserID, req.Seed)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Created(ctx, variant)
}

// @Summary Get a task variant
// @Tags task
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "variant ID"
// @Success 200 {object} util.Response
// @Router /api/tasks/variants/{id} [get]
func (c *TaskController) GetVariant(ctx *gin.Context) {
	variant, err := c.Service.GetVariant(ctx.Param("id"))
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, variant)
}
