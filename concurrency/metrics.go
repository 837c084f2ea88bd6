package concurrency

import "time"

// RecordResponse counts a received response by status code.
func (m *ConcurrencyMetrics) RecordResponse(statusCode int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.StatusCodeCounts == nil {
		m.StatusCodeCounts = make(map[int]int64)
	}
	m.StatusCodeCounts[statusCode]++
}

// RecordRetry counts one replay after a credential refresh.
func (m *ConcurrencyMetrics) RecordRetry() {
	m.lock.Lock()
	m.TotalRetries++
	m.lock.Unlock()
}

// RecordRefresh counts one refresh exchange observed by the pipeline.
func (m *ConcurrencyMetrics) RecordRefresh() {
	m.lock.Lock()
	m.TotalRefreshes++
	m.lock.Unlock()
}

// RecordError counts one failed call.
func (m *ConcurrencyMetrics) RecordError() {
	m.lock.Lock()
	m.TotalErrors++
	m.lock.Unlock()
}

// MetricsSnapshot is a point-in-time copy of ConcurrencyMetrics.
type MetricsSnapshot struct {
	TotalRequests    int64
	TotalRetries     int64
	TotalRefreshes   int64
	TotalErrors      int64
	PermitWaitTime   time.Duration
	StatusCodeCounts map[int]int64
}

// Snapshot returns a copy that is safe to read without holding the lock.
func (m *ConcurrencyMetrics) Snapshot() MetricsSnapshot {
	m.lock.Lock()
	defer m.lock.Unlock()

	counts := make(map[int]int64, len(m.StatusCodeCounts))
	for code, n := range m.StatusCodeCounts {
		counts[code] = n
	}
	return MetricsSnapshot{
		TotalRequests:    m.TotalRequests,
		TotalRetries:     m.TotalRetries,
		TotalRefreshes:   m.TotalRefreshes,
		TotalErrors:      m.TotalErrors,
		PermitWaitTime:   m.PermitWaitTime,
		StatusCodeCounts: counts,
	}
}
