package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"casebridge/internal/services"
	"casebridge/internal/transport/httpdto"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// fail hands err to middleware.ErrorHandler, which maps it onto the status and code.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHENTICATED"))
		return uuid.Nil, false
	}
	return userID, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid "+name, "INVALID_REQUEST"))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) int {
	n, _ := strconv.Atoi(c.Query(name))
	return n
}

func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339: %w", name, casebridge_errors.ErrInvalidInput)
	}
	return &t, nil
}
