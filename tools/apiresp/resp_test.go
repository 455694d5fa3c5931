package apiresp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PMarket/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		code   int
		detail bool
	}{
		{name: "not found", err: errs.ErrRecordNotFound.WrapMsg("offer", "id", "o1"), status: http.StatusNotFound, code: errs.RecordNotFoundCode, detail: true},
		{name: "bad room", err: errs.ErrInvalidRoom.Wrap(), status: http.StatusBadRequest, code: errs.InvalidRoomCode},
		{name: "unauthorized", err: errs.ErrUnauthorized.Wrap(), status: http.StatusUnauthorized, code: errs.UnauthorizedCode},
		{name: "store down", err: errs.ErrStoreUnavailable.Wrap(), status: http.StatusServiceUnavailable, code: errs.StoreUnavailableCode},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError, code: errs.ServerInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Fail(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body errs.CodeError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.detail, body.Detail != "")
		})
	}
}
