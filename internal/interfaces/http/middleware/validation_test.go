package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pass/deposit-services/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationDetails(t *testing.T) {
	type callback struct {
		Term   string `json:"term" binding:"required_without=Status,max=8"`
		Status string `json:"status" binding:"omitempty,max=8"`
	}

	SetupValidator()
	gin.SetMode(gin.TestMode)

	bind := func(body string) []dto.ValidationDetail {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req callback
		err := c.ShouldBindJSON(&req)
		require.Error(t, err)
		return ValidationDetails(err)
	}

	details := bind(`{}`)
	require.Len(t, details, 1)
	assert.Equal(t, "term", details[0].Field)
	assert.Equal(t, "Required when Status is absent", details[0].Message)

	details = bind(`{"term":"much-too-long"}`)
	require.Len(t, details, 1)
	assert.Equal(t, "Must be at most 8 characters", details[0].Message)

	assert.Nil(t, ValidationDetails(errors.New("not a validation error")))
}
