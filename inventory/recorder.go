package inventory

// Recorder receives engine events for metrics. metrics.Prometheus is the
// production implementation.
type Recorder interface {
	PushAttempted(sku SKU, delta int64, err error)
	OrdersIngested(sku SKU, ingested, duplicates int, consumed int64)
	Drift(sku SKU, drift int64)
	Corrected(sku SKU, correction int64)
	ManualReview(sku SKU)
	NegativeAvailability(sku SKU, side Side)
}

type nopRecorder struct{}

func (nopRecorder) PushAttempted(SKU, int64, error)     {}
func (nopRecorder) OrdersIngested(SKU, int, int, int64) {}
func (nopRecorder) Drift(SKU, int64)                    {}
func (nopRecorder) Corrected(SKU, int64)                {}
func (nopRecorder) ManualReview(SKU)                    {}
func (nopRecorder) NegativeAvailability(SKU, Side)      {}
