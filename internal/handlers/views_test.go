package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"campus-chat/internal/cache"
	"campus-chat/internal/mocks"
	"campus-chat/internal/models"
	"campus-chat/internal/tasks"
	"campus-chat/internal/views"
)

type stubBuilder struct {
	builds atomic.Int32
	err    error
}

func (b *stubBuilder) RoomDetail(_ context.Context, roomID int) (models.RoomDetail, error) {
	b.builds.Add(1)
	if b.err != nil {
		return models.RoomDetail{}, b.err
	}
	return models.RoomDetail{Message: "Room details retrieve successfully", Room: models.RoomProfile{ID: roomID}}, nil
}

func (b *stubBuilder) Dashboard(_ context.Context, q string) (models.Dashboard, error) {
	b.builds.Add(1)
	if b.err != nil {
		return models.Dashboard{}, b.err
	}
	return models.Dashboard{Message: "Homepage details retrieved successfully.", TopicsCount: len(q)}, nil
}

func (b *stubBuilder) UserProfile(_ context.Context, userID int) (models.UserProfile, error) {
	b.builds.Add(1)
	if b.err != nil {
		return models.UserProfile{}, b.err
	}
	return models.UserProfile{Message: "User profile retrieve successfully", User: models.UserMinimal{ID: userID}}, nil
}

func setupViewRouter(handler *ViewHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/rooms/:room_id", handler.RoomDetail)
	r.GET("/home", handler.Dashboard)
	r.GET("/users/:user_id", handler.UserProfile)
	return r
}

func doRequest(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRoomDetailCacheHitReturnsStoredPayload(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{}
	queue := new(mocks.QueueMock)
	router := setupViewRouter(NewViewHandler(builder, store, store, queue, time.Minute, nil))

	require.NoError(t, store.Set(context.Background(), cache.RoomDetailKey(7), []byte(`{"message":"cached"}`), time.Minute))

	rec := doRequest(router, http.MethodGet, "/rooms/7")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"cached"}`, rec.Body.String())
	assert.Zero(t, builder.builds.Load())
	members, err := store.Members(context.Background(), cache.UsedRoomsSet)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, members)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestRoomDetailCacheMissBuildsAndQueuesWarmup(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{}
	queue := new(mocks.QueueMock)
	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(task tasks.Task) bool {
		var args tasks.RoomArgs
		return task.Name == tasks.WarmRoomDetail && task.Decode(&args) == nil && args.RoomID == 7
	})).Return(nil).Once()
	router := setupViewRouter(NewViewHandler(builder, store, store, queue, time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/rooms/7")

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.RoomDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Room details retrieve successfully", view.Message)
	assert.Equal(t, 7, view.Room.ID)
	assert.EqualValues(t, 1, builder.builds.Load())
	queue.AssertExpectations(t)
}

func TestRoomDetailNotFound(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{err: fmt.Errorf("room 7: %w", views.ErrNotFound)}
	router := setupViewRouter(NewViewHandler(builder, store, store, new(mocks.QueueMock), time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/rooms/7")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"room not found"}`, rec.Body.String())
}

func TestRoomDetailRejectsBadID(t *testing.T) {
	store := cache.NewMemoryStore()
	router := setupViewRouter(NewViewHandler(&stubBuilder{}, store, store, new(mocks.QueueMock), time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/rooms/zero")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardBuildErrorIs500(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{err: assert.AnError}
	router := setupViewRouter(NewViewHandler(builder, store, store, new(mocks.QueueMock), time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/home?q=go")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardQueueFailureStillServes(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{}
	router := setupViewRouter(NewViewHandler(builder, store, store, tasks.NoopQueue{Reason: "test"}, time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/home?q=go")

	require.Equal(t, http.StatusOK, rec.Code)
	var view models.Dashboard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Homepage details retrieved successfully.", view.Message)
	assert.Equal(t, 2, view.TopicsCount)
}

func TestUserProfileUsesUserKey(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &stubBuilder{}
	router := setupViewRouter(NewViewHandler(builder, store, store, tasks.NoopQueue{}, time.Minute, nil))

	require.NoError(t, store.Set(context.Background(), cache.UserProfileKey(3), []byte(`{"message":"cached user"}`), time.Minute))

	rec := doRequest(router, http.MethodGet, "/users/3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"cached user"}`, rec.Body.String())

	rec = doRequest(router, http.MethodGet, "/users/4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, builder.builds.Load())
}

type failingStore struct {
	cache.Backend
}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, assert.AnError }

func TestCacheOutageFallsBackToBuild(t *testing.T) {
	store := failingStore{Backend: cache.NewMemoryStore()}
	builder := &stubBuilder{}
	router := setupViewRouter(NewViewHandler(builder, store, store, tasks.NoopQueue{}, time.Minute, nil))

	rec := doRequest(router, http.MethodGet, "/rooms/5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, builder.builds.Load())
}

type blockingBuilder struct {
	stubBuilder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBuilder) RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error) {
	b.builds.Add(1)
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return models.RoomDetail{}, ctx.Err()
	}
	return models.RoomDetail{Message: "Room details retrieve successfully", Room: models.RoomProfile{ID: roomID}}, nil
}

func TestSharedBuildSurvivesFirstCallerDisconnect(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := &blockingBuilder{entered: make(chan struct{}), release: make(chan struct{})}
	router := setupViewRouter(NewViewHandler(builder, store, store, tasks.NoopQueue{}, time.Minute, nil))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req := httptest.NewRequest(http.MethodGet, "/rooms/7", nil).WithContext(firstCtx)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-builder.entered

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() { second <- doRequest(router, http.MethodGet, "/rooms/7") }()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	<-firstDone
	close(builder.release)

	select {
	case rec := <-second:
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Room details retrieve successfully")
	case <-time.After(2 * time.Second):
		t.Fatal("second request did not finish")
	}
	assert.EqualValues(t, 1, builder.builds.Load())
}
