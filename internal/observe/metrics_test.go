package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// meterSink is a [Metrics] set on a private provider whose readings can be
// pulled on demand.
type meterSink struct {
	t      *testing.T
	m      *Metrics
	reader *sdkmetric.ManualReader
}

func newMeterSink(t *testing.T) *meterSink {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return &meterSink{t: t, m: m, reader: reader}
}

func (p *meterSink) instrument(name string) metricdata.Aggregation {
	p.t.Helper()
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(context.Background(), &rm); err != nil {
		p.t.Fatalf("collect: %v", err)
	}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	p.t.Fatalf("instrument %s recorded nothing", name)
	return nil
}

// count sums every data point of an int64 instrument whose attributes
// include all of match.
func (p *meterSink) count(name string, match ...attribute.KeyValue) int64 {
	p.t.Helper()
	sum, ok := p.instrument(name).(metricdata.Sum[int64])
	if !ok {
		p.t.Fatalf("%s is not an int64 sum", name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if hasAll(dp.Attributes, match) {
			total += dp.Value
		}
	}
	return total
}

func (p *meterSink) histogram(name string) []metricdata.HistogramDataPoint[float64] {
	p.t.Helper()
	h, ok := p.instrument(name).(metricdata.Histogram[float64])
	if !ok {
		p.t.Fatalf("%s is not a float64 histogram", name)
	}
	return h.DataPoints
}

func hasAll(set attribute.Set, match []attribute.KeyValue) bool {
	for _, kv := range match {
		if v, ok := set.Value(kv.Key); !ok || v != kv.Value {
			return false
		}
	}
	return true
}

func TestSessionLifecycleMetrics(t *testing.T) {
	p := newMeterSink(t)
	ctx := context.Background()

	p.m.SessionsStarted.Add(ctx, 3)
	p.m.ActiveSessions.Add(ctx, 1)
	p.m.ActiveSessions.Add(ctx, 1)
	p.m.ActiveSessions.Add(ctx, -1)
	p.m.SetupDuration.Record(ctx, 0.3)
	p.m.SessionDuration.Record(ctx, 42)
	p.m.RecordSessionFailure(ctx, "transport")
	p.m.RecordSessionFailure(ctx, "transport")
	p.m.RecordSessionFailure(ctx, "permission")

	if got := p.count("matrixvoice.sessions.started"); got != 3 {
		t.Errorf("started = %d, want 3", got)
	}
	if got := p.count("matrixvoice.sessions.active"); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
	if got := p.count("matrixvoice.sessions.failed", Attr("reason", "transport")); got != 2 {
		t.Errorf("transport failures = %d, want 2", got)
	}
	if got := p.count("matrixvoice.sessions.failed", Attr("reason", "permission")); got != 1 {
		t.Errorf("permission failures = %d, want 1", got)
	}
	for name, want := range map[string]float64{
		"matrixvoice.session.setup.duration": 0.3,
		"matrixvoice.session.duration":       42,
	} {
		dps := p.histogram(name)
		if len(dps) != 1 || dps[0].Count != 1 || dps[0].Sum != want {
			t.Errorf("%s = %+v, want one sample of %v", name, dps, want)
		}
	}
}

func TestAudioPathCounters(t *testing.T) {
	p := newMeterSink(t)
	ctx := context.Background()

	p.m.FramesSent.Add(ctx, 7)
	p.m.FramesEnqueued.Add(ctx, 5)
	p.m.FramesPlayed.Add(ctx, 4)
	p.m.FramesDiscarded.Add(ctx, 1)
	p.m.ServerErrors.Add(ctx, 2)
	p.m.RecordDecodeError(ctx, "base64")
	p.m.RecordDecodeError(ctx, "json")

	for _, c := range []struct {
		name  string
		match []attribute.KeyValue
		want  int64
	}{
		{"matrixvoice.frames.sent", nil, 7},
		{"matrixvoice.playback.enqueued", nil, 5},
		{"matrixvoice.playback.played", nil, 4},
		{"matrixvoice.playback.discarded", nil, 1},
		{"matrixvoice.protocol.server_errors", nil, 2},
		{"matrixvoice.protocol.decode_errors", nil, 2},
		{"matrixvoice.protocol.decode_errors", []attribute.KeyValue{Attr("reason", "base64")}, 1},
	} {
		if got := p.count(c.name, c.match...); got != c.want {
			t.Errorf("%s%v = %d, want %d", c.name, c.match, got, c.want)
		}
	}
}

func TestRecordFramesDroppedSkipsNonPositive(t *testing.T) {
	p := newMeterSink(t)
	ctx := context.Background()

	p.m.RecordFramesDropped(ctx, "capture", 0)
	p.m.RecordFramesDropped(ctx, "capture", 3)
	p.m.RecordFramesDropped(ctx, "capture", -1)
	p.m.RecordFramesDropped(ctx, "playback", 2)

	if got := p.count("matrixvoice.frames.dropped", Attr("stage", "capture")); got != 3 {
		t.Errorf("capture drops = %d, want 3", got)
	}
	if got := p.count("matrixvoice.frames.dropped"); got != 5 {
		t.Errorf("all drops = %d, want 5", got)
	}
}

func TestDefaultMetricsIsShared(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics built two instances")
	}
}
