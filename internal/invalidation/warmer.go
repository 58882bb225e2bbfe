package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"campus-chat/internal/cache"
	"campus-chat/internal/logging"
	"campus-chat/internal/models"
	"campus-chat/internal/observability"
	"campus-chat/internal/views"
)

var tracer = otel.Tracer("campus-chat/invalidation")

// ViewBuilder builds complete view payloads.
type ViewBuilder interface {
	RoomDetail(ctx context.Context, roomID int) (models.RoomDetail, error)
	Dashboard(ctx context.Context, q string) (models.Dashboard, error)
	UserProfile(ctx context.Context, userID int) (models.UserProfile, error)
}

type WarmerOptions struct {
	TTL               time.Duration
	TrackingTTL       time.Duration
	DashboardCooldown time.Duration
}

// Warmer rebuilds cached views. Each run writes one complete payload and tracks its key so the
// next invalidation rebuilds it again.
type Warmer struct {
	builder ViewBuilder
	store   cache.Store
	tracker cache.Tracker
	opt     WarmerOptions
	logger  *zap.Logger
}

func NewWarmer(builder ViewBuilder, store cache.Store, tracker cache.Tracker, opt WarmerOptions, logger *zap.Logger) *Warmer {
	return &Warmer{builder: builder, store: store, tracker: tracker, opt: opt, logger: logging.OrNop(logger)}
}

func (w *Warmer) WarmRoomDetail(ctx context.Context, roomID int) error {
	ctx, span := tracer.Start(ctx, "warm.room_detail")
	defer span.End()
	span.SetAttributes(attribute.Int("room_id", roomID))

	view, err := w.builder.RoomDetail(ctx, roomID)
	if err != nil {
		return w.buildFailed(span, "room_detail", err, zap.Int("room_id", roomID))
	}
	return w.Put(ctx, "room_detail", cache.RoomDetailKey(roomID), cache.UsedRoomsSet, strconv.Itoa(roomID), view)
}

func (w *Warmer) WarmUserProfile(ctx context.Context, userID int) error {
	ctx, span := tracer.Start(ctx, "warm.user_profile")
	defer span.End()
	span.SetAttributes(attribute.Int("user_id", userID))

	view, err := w.builder.UserProfile(ctx, userID)
	if err != nil {
		return w.buildFailed(span, "user_profile", err, zap.Int("user_id", userID))
	}
	return w.Put(ctx, "user_profile", cache.UserProfileKey(userID), cache.UsedUsersSet, strconv.Itoa(userID), view)
}

// WarmDashboard rebuilds the homepage for q unless another rebuild for q claimed the cooldown
// window. A tracker outage does not block the rebuild.
func (w *Warmer) WarmDashboard(ctx context.Context, q string) error {
	ctx, span := tracer.Start(ctx, "warm.dashboard")
	defer span.End()
	span.SetAttributes(attribute.String("q", q))

	// A zero cooldown rebuilds every time; claiming with ttl 0 would never expire.
	if w.opt.DashboardCooldown > 0 {
		claimed, err := w.tracker.Claim(ctx, cache.DashboardCooldownKey(q), w.opt.DashboardCooldown)
		if err != nil {
			w.logger.Warn("dashboard cooldown claim failed", zap.String("q", q), zap.Error(err))
		} else if !claimed {
			observability.IncCacheRebuild("dashboard", "skipped")
			w.logger.Debug("dashboard warmed recently, skipping", zap.String("q", q))
			return nil
		}
	}

	view, err := w.builder.Dashboard(ctx, q)
	if err != nil {
		return w.buildFailed(span, "dashboard", err, zap.String("q", q))
	}
	return w.Put(ctx, "dashboard", cache.HomepageKey(q), cache.UsedQueriesSet, q, view)
}

// Put stores a built payload under key and records member in its tracking set.
func (w *Warmer) Put(ctx context.Context, view, key, set, member string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		observability.IncCacheRebuild(view, "failed")
		return err
	}
	if err := w.store.Set(ctx, key, raw, w.opt.TTL); err != nil {
		observability.IncCacheRebuild(view, "failed")
		w.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	if err := w.tracker.Add(ctx, set, member, w.opt.TrackingTTL); err != nil {
		w.logger.Warn("track key failed", zap.String("set", set), zap.Error(err))
	}
	observability.IncCacheRebuild(view, "built")
	return nil
}

func (w *Warmer) buildFailed(sp trace.Span, view string, err error, field zap.Field) error {
	if errors.Is(err, views.ErrNotFound) {
		observability.IncCacheRebuild(view, "skipped")
		w.logger.Warn("view subject missing, skipping rebuild", zap.String("view", view), field)
		return nil
	}
	observability.IncCacheRebuild(view, "failed")
	sp.RecordError(err)
	sp.SetStatus(codes.Error, err.Error())
	return err
}
