package collaboration

import "hash/fnv"

// cursorPalette holds the colors assigned to user cursors. Assignment is a
// stable hash of the user id, so every connection of the same user gets the
// same color across tabs and reconnects.
var cursorPalette = []string{
	"#E74C3C", "#E67E22", "#F1C40F", "#2ECC71",
	"#1ABC9C", "#3498DB", "#9B59B6", "#FD79A8",
	"#00B894", "#6C5CE7", "#D63031", "#0984E3",
}

func colorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return cursorPalette[h.Sum32()%uint32(len(cursorPalette))]
}
