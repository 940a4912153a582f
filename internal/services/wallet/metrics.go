package wallet

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (n *NoopMetricsCollector) RecordTransaction(string, float64) {}
func (n *NoopMetricsCollector) RecordError(string, string)        {}
func (n *NoopMetricsCollector) RecordCacheHit(string)             {}
func (n *NoopMetricsCollector) RecordCacheMiss(string)            {}
