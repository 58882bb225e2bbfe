package invalidation

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"campus-chat/internal/cache"
	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
	"campus-chat/internal/tasks"
)

// Coordinator purges cached views affected by a model change and schedules their rebuild.
// Cache and queue failures are logged and never returned: a purge may leave entries absent,
// never stale.
type Coordinator struct {
	store   cache.Store
	tracker cache.Tracker
	queue   tasks.Queue
	logger  *zap.Logger
}

func NewCoordinator(store cache.Store, tracker cache.Tracker, queue tasks.Queue, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, tracker: tracker, queue: queue, logger: logging.OrNop(logger)}
}

// Invalidate applies ch synchronously. Only an invalid change is reported as an error.
func (c *Coordinator) Invalidate(ctx context.Context, ch Change) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	observability.IncInvalidation(string(ch.Model), string(ch.Op))
	logger := c.logger.With(zap.String("model", string(ch.Model)), zap.Int("id", ch.ID), zap.String("op", string(ch.Op)))

	c.purgeDashboards(ctx, logger)

	if ch.Op == OpDeleted && ch.ID > 0 {
		switch ch.Model {
		case ModelRoom:
			c.dropEntity(ctx, logger, cache.RoomDetailKey(ch.ID), cache.UsedRoomsSet, ch.ID)
			return nil
		case ModelUser:
			c.dropEntity(ctx, logger, cache.UserProfileKey(ch.ID), cache.UsedUsersSet, ch.ID)
			return nil
		}
	}

	if ch.ID > 0 {
		switch ch.Model {
		case ModelRoom:
			c.delete(ctx, logger, cache.RoomDetailKey(ch.ID))
		case ModelUser:
			c.delete(ctx, logger, cache.UserProfileKey(ch.ID))
		}
	}

	for _, id := range c.members(ctx, logger, cache.UsedRoomsSet) {
		c.enqueue(ctx, tasks.WarmRoomDetail, tasks.RoomArgs{RoomID: id})
	}
	for _, id := range c.members(ctx, logger, cache.UsedUsersSet) {
		c.enqueue(ctx, tasks.WarmUserProfile, tasks.UserArgs{UserID: id})
	}
	return nil
}

// Changed hands ch to the task queue. When the queue refuses it the purge runs inline.
func (c *Coordinator) Changed(ctx context.Context, ch Change) {
	task, err := tasks.New(tasks.ModelChanged, ch)
	if err == nil {
		err = c.queue.Enqueue(ctx, task)
	}
	if err == nil {
		observability.IncTask(tasks.ModelChanged, "enqueue", "ok")
		return
	}
	observability.IncTask(tasks.ModelChanged, "enqueue", "error")
	c.logger.Debug("model_changed not queued, invalidating inline", zap.Error(err))
	if err := c.Invalidate(ctx, ch); err != nil {
		c.logger.Warn("inline invalidation rejected", zap.Error(err))
	}
}

func (c *Coordinator) purgeDashboards(ctx context.Context, logger *zap.Logger) {
	queries, err := c.tracker.Members(ctx, cache.UsedQueriesSet)
	if err != nil {
		logger.Warn("list used queries failed", zap.Error(err))
	}

	keys := []string{cache.HomepageKey("")}
	warm := []string{""}
	for _, q := range queries {
		if q == "" {
			continue
		}
		keys = append(keys, cache.HomepageKey(q))
		warm = append(warm, q)
	}
	c.delete(ctx, logger, keys...)
	for _, q := range warm {
		c.enqueue(ctx, tasks.WarmDashboard, tasks.DashboardArgs{Q: q})
	}
}

func (c *Coordinator) dropEntity(ctx context.Context, logger *zap.Logger, key, set string, id int) {
	c.delete(ctx, logger, key)
	if err := c.tracker.Remove(ctx, set, strconv.Itoa(id)); err != nil {
		logger.Warn("untrack failed", zap.String("set", set), zap.Error(err))
	}
}

func (c *Coordinator) delete(ctx context.Context, logger *zap.Logger, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		logger.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Coordinator) members(ctx context.Context, logger *zap.Logger, set string) []int {
	raw, err := c.tracker.Members(ctx, set)
	if err != nil {
		logger.Warn("list tracking set failed", zap.String("set", set), zap.Error(err))
		return nil
	}
	ids := make([]int, 0, len(raw))
	for _, m := range raw {
		id, err := strconv.Atoi(m)
		if err != nil {
			logger.Debug("ignoring malformed tracked id", zap.String("set", set), zap.String("member", m))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *Coordinator) enqueue(ctx context.Context, name string, args any) {
	task, err := tasks.New(name, args)
	if err == nil {
		err = c.queue.Enqueue(ctx, task)
	}
	if err != nil {
		observability.IncTask(name, "enqueue", "error")
		c.logger.Debug("warm task not queued", zap.String("task", name), zap.Error(err))
		return
	}
	observability.IncTask(name, "enqueue", "ok")
}
