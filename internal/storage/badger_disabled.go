//go:build !badger
// +build !badger

package storage

import (
	"errors"

	logx "tickd/pkg/logx"
)

func openBadger(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("badger storage not built: build with -tags badger")
}
