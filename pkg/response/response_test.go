package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ScheduledRecorder/pkg/errors"
	"ScheduledRecorder/pkg/i18n"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMapsCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("schedule: %w", errors.WithCode(errors.CodeAlreadyScheduled, "window overlaps")))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeAlreadyScheduled, body.Code)
	assert.Equal(t, "schedule: window overlaps", body.Msg)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(errors.CodeNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(errors.CodeTimeInPast))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(0))
}

func TestErrorLocalized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tr, err := i18n.NewTranslator("en")
	require.NoError(t, err)
	UseTranslator(tr)
	defer UseTranslator(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("Accept-Language", "zh")
	Error(c, errors.WithCode(errors.CodeTimeInPast, "start time is in the past"))

	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "开始时间已过。", body.Msg)

	// no header keeps the raw message
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	Error(c, errors.WithCode(errors.CodeTimeInPast, "start time is in the past"))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "start time is in the past", body.Msg)
}
