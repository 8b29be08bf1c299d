package util

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/renstrom/shortuuid"
)

var entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
var m sync.Mutex

// NewULID returns a lower case ULID. ULIDs generated by one process sort in creation order.
func NewULID() string {
	m.Lock()
	defer m.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

// NewClientID returns a random broker client identifier starting with prefix.
// The result is at most 23 characters long, the limit imposed by MQTT 3.1 brokers.
func NewClientID(prefix string) string {
	const maxLen, maxPrefix = 23, 8
	id := shortuuid.New()
	if prefix == "" {
		return id
	}
	if len(prefix) > maxPrefix {
		prefix = prefix[:maxPrefix]
	}
	id = prefix + "-" + id
	if len(id) > maxLen {
		id = id[:maxLen]
	}
	return id
}
