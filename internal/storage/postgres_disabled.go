//go:build !postgres
// +build !postgres

package storage

import (
	"errors"

	logx "tickd/pkg/logx"
)

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	_ = cfg
	_ = log
	return nil, errors.New("postgres storage not built: build with -tags postgres")
}
