package sqlstore

import "github.com/goliatone/go-docaccess/resilience"

var (
	_ resilience.StateStore = (*ThrottleStateStore)(nil)
	_ resilience.StateStore = (*CachedThrottleStateStore)(nil)
)
