// concurrency/handler.go
package concurrency

import (
	"sync"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/logger"
)

// DefaultAcquireTimeout bounds how long a request waits for a free slot.
const DefaultAcquireTimeout = 10 * time.Second

// ConcurrencyHandler controls the number of concurrent HTTP requests.
type ConcurrencyHandler struct {
	sem            chan struct{}
	logger         logger.Logger
	acquireTimeout time.Duration
	Metrics        *ConcurrencyMetrics
}

// ConcurrencyMetrics captures counters for the client's interactions with the API.
type ConcurrencyMetrics struct {
	TotalRequests    int64         // Total number of requests that acquired a slot
	TotalRetries     int64         // Requests replayed after a credential refresh
	TotalRefreshes   int64         // Refresh exchanges observed by the pipeline
	TotalErrors      int64         // Requests that ended in any error
	PermitWaitTime   time.Duration // Total time spent waiting for slots
	StatusCodeCounts map[int]int64 // Responses received, by status code
	lock             sync.Mutex
}

// NewConcurrencyMetrics returns zeroed metrics.
func NewConcurrencyMetrics() *ConcurrencyMetrics {
	return &ConcurrencyMetrics{StatusCodeCounts: make(map[int]int64)}
}

// NewConcurrencyHandler initializes a new ConcurrencyHandler with the given
// concurrency limit, logger, and concurrency metrics. The ConcurrencyHandler ensures
// no more than a certain number of concurrent requests are made.
// It uses a semaphore to control concurrency.
func NewConcurrencyHandler(limit int, log logger.Logger, metrics *ConcurrencyMetrics) *ConcurrencyHandler {
	if limit < 1 {
		limit = 1
	}
	if metrics == nil {
		metrics = NewConcurrencyMetrics()
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ConcurrencyHandler{
		sem:            make(chan struct{}, limit),
		logger:         log,
		acquireTimeout: DefaultAcquireTimeout,
		Metrics:        metrics,
	}
}

// SetAcquireTimeout overrides DefaultAcquireTimeout.
func (ch *ConcurrencyHandler) SetAcquireTimeout(d time.Duration) {
	ch.acquireTimeout = d
}

// Limit returns the maximum number of in-flight requests.
func (ch *ConcurrencyHandler) Limit() int {
	return cap(ch.sem)
}

// InFlight returns the number of currently held slots.
func (ch *ConcurrencyHandler) InFlight() int {
	return len(ch.sem)
}

// RequestIDKey is type used as a key for storing and retrieving
// request-specific identifiers from a context.Context object. The value associated
// with this key in a context is a UUID that uniquely identifies one pipeline call,
// including its replay after a refresh.
type RequestIDKey struct{}
