package database

import (
	"github.com/lysyi3m/crosspost/app/queue"
)

var _ queue.Store = (*QueueRepository)(nil)
