package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"campus-chat/internal/cache"
	"campus-chat/internal/invalidation"
	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
	"campus-chat/internal/tasks"
	"campus-chat/internal/views"
)

// ViewHandler serves the cached read views. A hit returns the stored payload as is; a miss
// builds the view once per key and asks the task queue to warm the cache.
type ViewHandler struct {
	builder     invalidation.ViewBuilder
	store       cache.Store
	tracker     cache.Tracker
	queue       tasks.Queue
	trackingTTL time.Duration
	group       singleflight.Group
	logger      *zap.Logger
}

// NewViewHandler builds a ViewHandler.
func NewViewHandler(builder invalidation.ViewBuilder, store cache.Store, tracker cache.Tracker, queue tasks.Queue, trackingTTL time.Duration, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{
		builder:     builder,
		store:       store,
		tracker:     tracker,
		queue:       queue,
		trackingTTL: trackingTTL,
		logger:      logging.OrNop(logger),
	}
}

const buildTimeout = 15 * time.Second

type viewRequest struct {
	view     string
	key      string
	set      string
	member   string
	notFound string
	build    func(ctx context.Context) (any, error)
	warm     string
	warmArgs any
}

// RoomDetail handles GET /rooms/:room_id.
func (h *ViewHandler) RoomDetail(c *gin.Context) {
	roomID, ok := intParam(c, "room_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	h.serve(c, viewRequest{
		view:     "room_detail",
		key:      cache.RoomDetailKey(roomID),
		set:      cache.UsedRoomsSet,
		member:   strconv.Itoa(roomID),
		notFound: "room not found",
		build: func(ctx context.Context) (any, error) {
			return h.builder.RoomDetail(ctx, roomID)
		},
		warm:     tasks.WarmRoomDetail,
		warmArgs: tasks.RoomArgs{RoomID: roomID},
	})
}

// Dashboard handles GET /home?q=.
func (h *ViewHandler) Dashboard(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	h.serve(c, viewRequest{
		view:   "dashboard",
		key:    cache.HomepageKey(q),
		set:    cache.UsedQueriesSet,
		member: q,
		build: func(ctx context.Context) (any, error) {
			return h.builder.Dashboard(ctx, q)
		},
		warm:     tasks.WarmDashboard,
		warmArgs: tasks.DashboardArgs{Q: q},
	})
}

// UserProfile handles GET /users/:user_id.
func (h *ViewHandler) UserProfile(c *gin.Context) {
	userID, ok := intParam(c, "user_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	h.serve(c, viewRequest{
		view:     "user_profile",
		key:      cache.UserProfileKey(userID),
		set:      cache.UsedUsersSet,
		member:   strconv.Itoa(userID),
		notFound: "user not found",
		build: func(ctx context.Context) (any, error) {
			return h.builder.UserProfile(ctx, userID)
		},
		warm:     tasks.WarmUserProfile,
		warmArgs: tasks.UserArgs{UserID: userID},
	})
}

func (h *ViewHandler) serve(c *gin.Context, req viewRequest) {
	ctx := c.Request.Context()
	logger := h.logger.With(zap.String("view", req.view), zap.String("key", req.key))

	payload, err := h.store.Get(ctx, req.key)
	switch {
	case err == nil:
		observability.IncCacheLookup(req.view, "hit")
		if err := h.tracker.Add(ctx, req.set, req.member, h.trackingTTL); err != nil {
			logger.Warn("track key failed", zap.Error(err))
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
		return
	case errors.Is(err, cache.ErrMiss):
		observability.IncCacheLookup(req.view, "miss")
	default:
		observability.IncCacheLookup(req.view, "error")
		logger.Warn("cache read failed, building directly", zap.Error(err))
	}

	// The shared build outlives any single caller; each caller only stops waiting on its own ctx.
	ch := h.group.DoChan(req.key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		view, err := req.build(buildCtx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(view)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		logger.Debug("client gone before view was built", zap.Error(ctx.Err()))
		c.Abort()
		return
	}
	if res.Err != nil {
		if errors.Is(res.Err, views.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": req.notFound})
			return
		}
		logger.Error("build view failed", zap.Error(res.Err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load view"})
		return
	}

	h.warm(ctx, logger, req.warm, req.warmArgs)
	c.Data(http.StatusOK, "application/json; charset=utf-8", res.Val.([]byte))
}

func (h *ViewHandler) warm(ctx context.Context, logger *zap.Logger, name string, args any) {
	task, err := tasks.New(name, args)
	if err == nil {
		err = h.queue.Enqueue(context.WithoutCancel(ctx), task)
	}
	if err != nil {
		logger.Debug("warm task not queued", zap.String("task", name), zap.Error(err))
	}
}
