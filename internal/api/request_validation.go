package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"carechat/infrastructure"
)

// BindJSON decodes and validates the request body against its binding tags.
func BindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrInvalidInput, err)
	}
	return nil
}

// BindQuery decodes and validates query parameters.
func BindQuery(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return fmt.Errorf("%w: %v", infrastructure.ErrInvalidInput, err)
	}
	return nil
}

// Fail writes err with its mapped HTTP status and aborts the chain.
func Fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(infrastructure.HTTPStatus(err), gin.H{
		"error": infrastructure.PublicMessage(err),
		"code":  infrastructure.Code(err).String(),
	})
}
