package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uclouvain/osis-score-encoding/internal/middleware"
	"github.com/uclouvain/osis-score-encoding/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func principalFromContext(c *gin.Context) models.Principal {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Principal{}
	}
	return models.Principal{
		UserID:   claims.UserID,
		GlobalID: claims.GlobalID,
		Email:    claims.Email,
		FullName: claims.FullName,
		Role:     claims.Role,
	}
}
