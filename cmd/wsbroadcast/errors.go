package main

import (
	stderrors "errors"

	"github.com/livecaption/wsbroadcast/internal/errors"
	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/loop"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

// classify maps library errors to coded CLI errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var be *errors.BroadcastError
	if stderrors.As(err, &be) {
		return err
	}

	var (
		serveErr *broadcast.ServeError
		panicErr *loop.PanicError
	)
	switch {
	case stderrors.Is(err, broadcast.ErrBind):
		return errors.New("E201").Wrap(err)
	case stderrors.As(err, &serveErr), stderrors.As(err, &panicErr):
		return errors.New("E202").Wrap(err)
	case stderrors.Is(err, pool.ErrClosed):
		return errors.New("E203").Wrap(err)
	case stderrors.Is(err, pool.ErrInvalidPort):
		return errors.New("E204").Wrap(err)
	default:
		return err
	}
}
