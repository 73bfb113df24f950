package common

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("错误消息格式", func(t *testing.T) {
		appErr := NewForbiddenError("拒绝访问", nil)
		assert.Equal(t, "[FORBIDDEN] 拒绝访问", appErr.Error())

		cause := errors.New("underlying")
		appErr = NewInternalError("内部错误", cause)
		assert.Contains(t, appErr.Error(), "underlying")
		assert.Equal(t, cause, errors.Unwrap(appErr))
	})

	t.Run("状态码映射", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, NewValidationError("", nil).StatusCode())
		assert.Equal(t, http.StatusForbidden, NewForbiddenError("", nil).StatusCode())
		assert.Equal(t, http.StatusNotFound, NewNotFoundError("", nil).StatusCode())
		assert.Equal(t, http.StatusInternalServerError, NewInternalError("", nil).StatusCode())
	})

	t.Run("响应体包含附加字段", func(t *testing.T) {
		appErr := NewForbiddenError("不是Leader", nil).WithField("leader", "http://10.0.0.2:8484")

		resp := appErr.Response()
		assert.Equal(t, "FORBIDDEN", resp["code"])
		details, ok := resp["details"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "http://10.0.0.2:8484", details["leader"])
	})

	t.Run("ToAppError转换", func(t *testing.T) {
		plain := errors.New("plain")
		appErr := ToAppError(plain)
		require.NotNil(t, appErr)
		assert.Equal(t, "UNKNOWN", appErr.Code)

		assert.Nil(t, ToAppError(nil))
		assert.True(t, IsAppError(appErr))
		assert.False(t, IsAppError(plain))
	})
}
