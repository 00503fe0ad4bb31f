package validation

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidAccountID(t *testing.T) {
	valid := []string{"MULE_RINGLEADER_01", "MULE_BLR_007", "MULE_RAND_4821", "a", "acct-1.2"}
	invalid := []string{"", "_leading", "has space", "semi;colon", string(make([]byte, 65))}

	for _, id := range valid {
		assert.True(t, IsValidAccountID(id), id)
	}
	for _, id := range invalid {
		assert.False(t, IsValidAccountID(id), id)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	hour := 24
	errs := Validate(
		Required("mule_id", " "),
		Latitude("current_lat", 91),
		Longitude("current_long", 77.2),
		IntBetween("hour", &hour, 0, 23),
		NonNegative("amount", -5),
	)

	require.Len(t, errs, 4)
	assert.Equal(t, "mule_id", errs[0].Field)
	assert.Equal(t, "current_lat", errs[1].Field)
	assert.Equal(t, "hour", errs[2].Field)
	assert.Equal(t, "amount", errs[3].Field)
	assert.Equal(t, "mule_id: is required", errs.Error())
}

func TestValidate_NilWhenClean(t *testing.T) {
	errs := Validate(
		Required("mule_id", "MULE_RINGLEADER_01"),
		AccountID("mule_id", "MULE_RINGLEADER_01"),
		IntBetween("hour", nil, 0, 23),
		Latitude("lat", -90),
		Longitude("long", 180),
	)
	assert.Nil(t, errs)
	assert.Equal(t, "validation failed", Errors(nil).Error())
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestSizeMiddleware(8))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", bytes.NewBufferString("tiny")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/echo", bytes.NewBufferString("far too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAbort(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Abort(c, Errors{{Field: "mule_id", Message: "is required"}})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"validation_failed"`)
	assert.Contains(t, w.Body.String(), `"field":"mule_id"`)
}
