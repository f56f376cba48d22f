package components

import "strconv"

// RoomPath is the URL of a room page or one of its endpoints.
func RoomPath(id uint64, suffix string) string {
	return "/room/" + strconv.FormatUint(id, 10) + suffix
}

func actionPath(id uint64, action string) string {
	return RoomPath(id, "/"+action)
}
