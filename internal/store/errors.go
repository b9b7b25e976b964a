package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrOpenStore   = errors.New("open store failed")
	ErrFlushStore  = errors.New("flush store failed")
	ErrReplication = errors.New("replication failed")
)
