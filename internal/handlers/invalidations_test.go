package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"campus-chat/internal/invalidation"
	"campus-chat/internal/mocks"
)

func setupInvalidationRouter(notifier ChangeNotifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/internal/invalidations", NewInvalidationHandler(notifier).PostChange)
	return r
}

func TestPostChangeAccepted(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupInvalidationRouter(notifier)
	notifier.On("Changed", mock.Anything, invalidation.Change{Model: invalidation.ModelRoom, ID: 4, Op: invalidation.OpDeleted}).Return().Once()

	rec := postJSON(router, "/internal/invalidations", `{"model":"Room","id":4,"op":"deleted"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	notifier.AssertExpectations(t)
}

func TestPostChangeRejectsInvalid(t *testing.T) {
	notifier := new(mocks.NotifierMock)
	router := setupInvalidationRouter(notifier)

	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/internal/invalidations", `{"model":"Planet","id":1,"op":"created"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/internal/invalidations", `{"model":"Room","id":1,"op":"renamed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(router, "/internal/invalidations", `not json`).Code)
	notifier.AssertNotCalled(t, "Changed", mock.Anything, mock.Anything)
}
