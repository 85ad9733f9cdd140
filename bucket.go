package ratelimiter

import (
	"regexp"
	"strconv"
	"time"
)

// hashTagPattern matches identities that already carry a cluster hash tag.
var hashTagPattern = regexp.MustCompile(`^.*\{[^}]+\}.*$`)

// Bucket describes the counter of one window for one identity.
type Bucket struct {
	// Key is the store key, "{identity}:{window}:{slot}".
	Key string
	// Limit is the maximum count admitted in the window.
	Limit int64
	// Window is the window length in seconds; it is also the key TTL.
	Window int64
	// Slot is floor(unix time / Window).
	Slot int64
}

// ResetAt returns the instant the bucket's window ends.
func (b Bucket) ResetAt() time.Time {
	return time.Unix((b.Slot+1)*b.Window, 0)
}

// HashTag wraps identity in a Redis Cluster hash tag so that every window of
// the identity lands on the same shard. Identities that already contain a
// non-empty {...} segment are returned unchanged.
//
//	HashTag("user:42")   // "{user:42}"
//	HashTag("{user:42}") // "{user:42}"
func HashTag(identity string) string {
	if hashTagPattern.MatchString(identity) {
		return identity
	}
	return "{" + identity + "}"
}

// Slot returns the epoch-aligned slot index of now for a window of the given
// length in seconds.
func Slot(now time.Time, window int64) int64 {
	unix := now.Unix()
	slot := unix / window
	if unix < 0 && unix%window != 0 {
		slot--
	}
	return slot
}

// BuildBuckets derives the bucket descriptors of identity for the instant now,
// longest window first. It is a pure function of its inputs.
func BuildBuckets(identity string, limits Limits, now time.Time) []Bucket {
	tagged := HashTag(identity)
	buckets := make([]Bucket, 0, len(limits))
	for _, window := range limits.Windows() {
		slot := Slot(now, window)
		buckets = append(buckets, Bucket{
			Key:    tagged + ":" + strconv.FormatInt(window, 10) + ":" + strconv.FormatInt(slot, 10),
			Limit:  limits[window],
			Window: window,
			Slot:   slot,
		})
	}
	return buckets
}

// Keys returns the store keys of buckets in order.
func Keys(buckets []Bucket) []string {
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key
	}
	return keys
}
