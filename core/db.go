package core

import "context"

type (
	// TxRunner runs fn as one unit of work: every repository write made with the ctx passed to fn
	// is committed together or not at all.
	TxRunner interface {
		RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	// NoTx runs fn directly. Used by components that never write more than one record at a time.
	NoTx struct{}
)

func (NoTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
