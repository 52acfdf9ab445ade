package group

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

type groupMetrics struct {
	once sync.Once

	sentMessages        atomic.Int64
	sentBytes           atomic.Int64
	sendErrors          atomic.Int64
	sendTimeouts        atomic.Int64
	tooLargeSubmessages atomic.Int64
	destinationFlushes  atomic.Int64
	overflowFlushes     atomic.Int64
	appendedSubmessages atomic.Int64

	sendTime *telemetry.Histogram
}

var groupMetricsInst = &groupMetrics{}

func (gm *groupMetrics) init(tel *telemetry.Telemetry) {
	gm.once.Do(func() {
		gm.initMetrics(tel)
	})
}

func (gm *groupMetrics) initMetrics(tel *telemetry.Telemetry) {
	tel.NewCounter("sent_messages", func() int64 { return gm.sentMessages.Load() })
	tel.NewCounter("sent_bytes", func() int64 { return gm.sentBytes.Load() })
	tel.NewCounter("send_errors", func() int64 { return gm.sendErrors.Load() })
	tel.NewCounter("send_timeouts", func() int64 { return gm.sendTimeouts.Load() })
	tel.NewCounter("too_large_submessages", func() int64 { return gm.tooLargeSubmessages.Load() })
	tel.NewCounter("destination_flushes", func() int64 { return gm.destinationFlushes.Load() })
	tel.NewCounter("overflow_flushes", func() int64 { return gm.overflowFlushes.Load() })
	tel.NewCounter("appended_submessages", func() int64 { return gm.appendedSubmessages.Load() })

	gm.sendTime = tel.NewHistogram("send_time", metric.WithUnit("ms"))
}

func (gm *groupMetrics) addSentMessage(size int) {
	gm.sentMessages.Add(1)
	gm.sentBytes.Add(int64(size))
}

func (gm *groupMetrics) incrementSendErrors() {
	gm.sendErrors.Add(1)
}

func (gm *groupMetrics) incrementSendTimeouts() {
	gm.sendTimeouts.Add(1)
}

func (gm *groupMetrics) incrementTooLarge() {
	gm.tooLargeSubmessages.Add(1)
}

func (gm *groupMetrics) incrementDestinationFlushes() {
	gm.destinationFlushes.Add(1)
}

func (gm *groupMetrics) incrementOverflowFlushes() {
	gm.overflowFlushes.Add(1)
}

func (gm *groupMetrics) incrementAppended() {
	gm.appendedSubmessages.Add(1)
}

func (gm *groupMetrics) recordSendTime(ctx context.Context, start time.Time) {
	gm.sendTime.Record(ctx, time.Since(start).Milliseconds())
}
