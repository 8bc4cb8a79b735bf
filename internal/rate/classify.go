package rate

import (
	"net/http"
	"regexp"
	"strings"
)

// Tier groups endpoints that share one ceiling.
type Tier string

const (
	TierAuth    Tier = "auth"
	TierCreate  Tier = "create"
	TierUpdate  Tier = "update"
	TierDelete  Tier = "delete"
	TierSearch  Tier = "search"
	TierDefault Tier = "default"
)

// Tiers lists every tier in classification order.
var Tiers = []Tier{TierAuth, TierCreate, TierUpdate, TierDelete, TierSearch, TierDefault}

var uuidSegment = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// NormalizePath drops the query string and replaces UUID-shaped segments
// with ":id" so every record of a collection shares one counter.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if uuidSegment.MatchString(seg) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// Classify picks the tier for a request. Rules apply in order: a path
// mentioning auth, then the method, then a path mentioning search.
func Classify(path, method string) Tier {
	lower := strings.ToLower(path)
	if strings.Contains(lower, "auth") {
		return TierAuth
	}
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return TierCreate
	case http.MethodPut, http.MethodPatch:
		return TierUpdate
	case http.MethodDelete:
		return TierDelete
	}
	if strings.Contains(lower, "search") {
		return TierSearch
	}
	return TierDefault
}

// Identifier builds the counter owner: the user when known, else the address.
func Identifier(userID, ip string) string {
	if userID != "" {
		return "user_" + userID
	}
	if ip == "" {
		ip = "unknown"
	}
	return "ip_" + ip
}
