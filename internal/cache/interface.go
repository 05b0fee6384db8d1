package cache

import (
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// Ensure BadgerCache implements domain.Cache
var _ domain.Cache = (*BadgerCache)(nil)

// DefaultGCInterval is how often the value log is compacted
const DefaultGCInterval = 5 * time.Minute

// Options contains cache configuration options
type Options struct {
	// Directory defaults to ~/.photofeed/cache
	Directory string
	InMemory  bool
	// GCInterval of zero uses DefaultGCInterval
	GCInterval time.Duration
	// Logger receives badger diagnostics; nil keeps badger silent
	Logger *utils.Logger
}

// Stats describes what the cache holds
type Stats struct {
	Entries   int64 `json:"entries" yaml:"entries"`
	LSMBytes  int64 `json:"lsm_bytes" yaml:"lsm_bytes"`
	VlogBytes int64 `json:"vlog_bytes" yaml:"vlog_bytes"`
}
