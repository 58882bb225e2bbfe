package cache

import "fmt"

// Tracking sets of recently requested views.
const (
	UsedRoomsSet   = "room_ids_used"
	UsedUsersSet   = "user_ids_used"
	UsedQueriesSet = "homepage_q_keys"
)

const (
	roomDetailKey        = "RoomID%d"
	userProfileKey       = "UserID%d"
	homepageKey          = "homepage_cache"
	homepageQueryKey     = "homepage_cache_%s"
	dashboardCooldownKey = "dashboard_last_updated_%s"
	revokedTokenKey      = "revoked_jti:%s"
)

func RoomDetailKey(roomID int) string  { return fmt.Sprintf(roomDetailKey, roomID) }
func UserProfileKey(userID int) string { return fmt.Sprintf(userProfileKey, userID) }

// HomepageKey returns the dashboard key for q; the empty query uses the bare homepage key.
func HomepageKey(q string) string {
	if q == "" {
		return homepageKey
	}
	return fmt.Sprintf(homepageQueryKey, q)
}

func DashboardCooldownKey(q string) string { return fmt.Sprintf(dashboardCooldownKey, q) }
func RevokedTokenKey(jti string) string    { return fmt.Sprintf(revokedTokenKey, jti) }
