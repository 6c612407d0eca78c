package controller

import (
	"proofly_backend/internal/model"
	"proofly_backend/internal/service"
	"proofly_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReceiptController struct {
	Service *service.ReceiptService
}

func NewReceiptController(svc *service.ReceiptService) *ReceiptController {
	return &ReceiptController{Service: svc}
}

// @Summary Get a receipt with its amendment chain and verification result
// @Tags receipt
// @Produce json
// @Param id path string true "receipt ID"
// @Success 200 {object} util.Response
// @Router /api/receipts/{id} [get]
func (c *ReceiptController) Get(ctx *gin.Context) {
	payload, err := c.Service.Get(ctx.Param("id"))
	if err != nil {
		util.EngineError(ctx, err)
		return
	}

	// 非公开回执只有本人和平台角色可见
	if !payload.Receipt.Shareable {
		user := util.GetUserFromContext(ctx)
		if user == nil || (user.Role == model.Student && user.UserID != payload.Receipt.StudentID) {
			util.Forbidden(ctx)
			return
		}
	}
	util.Success(ctx, payload)
}

// @Summary List the authenticated student's receipts
// @Tags receipt
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/receipts [get]
func (c *ReceiptController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	receipts, err := c.Service.ListByStudent(user.UserID)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, receipts)
}

// @Summary Append an annotation amendment to a receipt
// @Tags receipt
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "receipt ID"
// @Success 200 {object} util.Response
// @Router /api/receipts/{id}/annotations [post]
func (c *ReceiptController) Annotate(ctx *gin.Context) {
	var req struct {
		Note string `json:"note" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	amendment, err := c.Service.Amend(ctx.Param("id"), model.AmendmentAnnotation, "", req.Note)
	if err != nil {
		util.EngineError(ctx, err)
		return
	}
	util.Success(ctx, amendment)
}
