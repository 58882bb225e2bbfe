package invalidation

import (
	"context"

	"campus-chat/internal/tasks"
)

// Register binds the coordinator and warmer to their task names.
func Register(d *tasks.Dispatcher, c *Coordinator, w *Warmer) {
	d.Register(tasks.ModelChanged, func(ctx context.Context, task tasks.Task) error {
		var ch Change
		if err := task.Decode(&ch); err != nil {
			return err
		}
		return c.Invalidate(ctx, ch)
	})
	d.Register(tasks.WarmRoomDetail, func(ctx context.Context, task tasks.Task) error {
		var args tasks.RoomArgs
		if err := task.Decode(&args); err != nil {
			return err
		}
		return w.WarmRoomDetail(ctx, args.RoomID)
	})
	d.Register(tasks.WarmUserProfile, func(ctx context.Context, task tasks.Task) error {
		var args tasks.UserArgs
		if err := task.Decode(&args); err != nil {
			return err
		}
		return w.WarmUserProfile(ctx, args.UserID)
	})
	d.Register(tasks.WarmDashboard, func(ctx context.Context, task tasks.Task) error {
		var args tasks.DashboardArgs
		if err := task.Decode(&args); err != nil {
			return err
		}
		return w.WarmDashboard(ctx, args.Q)
	})
}
