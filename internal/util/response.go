package util

import (
	"errors"
	"net/http"

	"proofly_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// EngineError maps the engine's error taxonomy onto HTTP responses so every
// controller surfaces the same shapes.
func EngineError(c *gin.Context, err error) {
	var ve *ValidationError
	var fb *FairnessBlockedError
	var sc *StateConflictError

	switch {
	case errors.As(err, &ve):
		BadRequest(c, ve.Msg)
	case errors.As(err, &fb):
		c.JSON(http.StatusUnprocessableEntity, Response{
			Code:    http.StatusUnprocessableEntity,
			Message: "fairness gate blocked decision",
			Data:    gin.H{"reasons": fb.Reasons},
		})
	case errors.As(err, &sc):
		c.JSON(http.StatusConflict, Response{
			Code:    http.StatusConflict,
			Message: sc.Err.Error(),
			Data:    gin.H{"currentState": sc.CurrentState},
		})
	case errors.Is(err, ErrAppealWindowExpired):
		Error(c, http.StatusGone, err.Error())
	case errors.Is(err, ErrInvalidTask), errors.Is(err, ErrDuplicateSubmission):
		Error(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrSubmissionNotFound), errors.Is(err, ErrReceiptNotFound),
		errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrUserNotFound):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Forbidden(c)
	default:
		LogInternalError(c, err)
	}
}
