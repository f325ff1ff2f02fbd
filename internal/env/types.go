package env

import "github.com/coffersTech/logbuf/internal/model"

type (
	// EnvInfo is re-exported so callers need only this package.
	EnvInfo = model.EnvInfo
	Network = model.Network
)
