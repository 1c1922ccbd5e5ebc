package source

import (
	"context"

	"github.com/livecaption/wsbroadcast/pkg/pool"
)

// Source produces messages for a set of broadcast targets.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Run delivers messages to targets until the source is exhausted or ctx
	// is done. An exhausted source returns nil.
	Run(ctx context.Context, targets []pool.Broadcaster) error
}

func deliver(targets []pool.Broadcaster, message string) {
	for _, t := range targets {
		t.Broadcast(message)
	}
}
