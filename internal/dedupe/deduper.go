package dedupe

import "context"

// Deduper gives at-most-once processing of inbound notifications keyed by event id
type Deduper interface {
	// if alreadySeen=true -> duplicate, notification processing is skipped
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
}
