package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meterly/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedRequest struct {
	Event string `json:"event_type" binding:"required,event_name"`
	Code  string `json:"code" binding:"omitempty,coupon_code"`
	Cost  int64  `json:"cost" binding:"gte=0"`
}

func bindRouter() *gin.Engine {
	SetupValidator()
	r := gin.New()
	r.POST("/bind", func(c *gin.Context) {
		var req taggedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func postJSON(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/bind", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupValidator_CustomTags(t *testing.T) {
	r := bindRouter()

	tests := []struct {
		name   string
		body   string
		status int
		field  string
	}{
		{"valid", `{"event_type":"login","code":"ABCD-EFGH-JKMN"}`, http.StatusOK, ""},
		{"event name is normalized before check", `{"event_type":"  Login "}`, http.StatusOK, ""},
		{"event name with spaces", `{"event_type":"log in"}`, http.StatusBadRequest, "event_type"},
		{"missing event name", `{}`, http.StatusBadRequest, "event_type"},
		{"code too short", `{"event_type":"login","code":"AB"}`, http.StatusBadRequest, "code"},
		{"code with symbols", `{"event_type":"login","code":"ABCD$EFGH"}`, http.StatusBadRequest, "code"},
		{"negative number", `{"event_type":"login","cost":-1}`, http.StatusBadRequest, "cost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, tt.body)

			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.field == "" {
				return
			}
			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
			require.NotEmpty(t, resp.Error.Details)
			assert.Equal(t, tt.field, resp.Error.Details[0].Field)
		})
	}
}

func TestHandleValidationError_MalformedJSON(t *testing.T) {
	w := postJSON(bindRouter(), `{"event_type":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Malformed request body")
}
