package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type throttleStateRecord struct {
	bun.BaseModel `bun:"table:docaccess_throttle_states,alias:dts"`

	ID             string     `bun:"id,pk"`
	Channel        string     `bun:"channel,notnull"`
	BucketKey      string     `bun:"bucket_key,notnull"`
	LimitValue     int        `bun:"limit_value,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterSecs *int       `bun:"retry_after_secs,nullzero"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
