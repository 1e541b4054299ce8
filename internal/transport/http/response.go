package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"slotengine/internal/service/scheduling"
	"slotengine/internal/transport/api"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	CodeOK          = 0
	CodeInvalid     = 40001
	CodeNotFound    = 40401
	CodeUnavailable = 40901
	CodeInternal    = 50001
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "success", Data: data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Code: CodeOK, Message: "success", Data: data})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{Code: CodeInvalid, Message: message})
}

// fail maps a service error to a status and envelope code.
func fail(c *gin.Context, log *slog.Logger, err error) {
	switch api.Classify(err) {
	case api.ClassInvalid:
		badRequest(c, err.Error())
	case api.ClassUnavailable:
		var ue *scheduling.SlotUnavailableError
		errors.As(err, &ue)
		c.JSON(http.StatusConflict, Response{
			Code:    CodeUnavailable,
			Message: ue.Error(),
			Data:    gin.H{"slot_start": ue.Start.UTC()},
		})
	case api.ClassNotFound:
		c.JSON(http.StatusNotFound, Response{Code: CodeNotFound, Message: "not found"})
	default:
		_ = c.Error(err)
		log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
		c.JSON(http.StatusInternalServerError, Response{Code: CodeInternal, Message: "internal error"})
	}
}
