package analytics

import "strings"

// OwnerOf projects the owning identity out of a history document path of the
// shape "users/<uid>/history/<doc>". Ownership always comes from the path,
// never from a field embedded in the record (the record may omit it).
// Unrecognized shapes yield "".
func OwnerOf(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "users" || segments[1] == "" {
		return ""
	}
	return segments[1]
}
