package models

import (
	"errors"
	"time"
)

var ErrInvalidValue = errors.New("invalid value")

const (
	// DateLayout is the wire format for booking dates.
	DateLayout = "2006-01-02"

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// SheetsCacheTTL период обновления кэша строк Google Sheets
	SheetsCacheTTL = time.Hour
)
