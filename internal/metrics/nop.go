package metrics

// NopMetrics discards all metrics
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordRouted(_ string, _ int) {}

func (n *NopMetrics) RecordRotation(_ string, _, _ int64, _, _ bool) {}

func (n *NopMetrics) SetOpenHandles(_ int) {}

func (n *NopMetrics) ObserveBatch(_ float64) {}
