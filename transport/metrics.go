package transport

import (
	"sync"
	"sync/atomic"

	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
)

type deliveryMetrics struct {
	once sync.Once

	deliveredMessages atomic.Int64
	deliveredBytes    atomic.Int64
	failedWrites      atomic.Int64
}

var (
	udpMetricsInst    = &deliveryMetrics{}
	tcpMetricsInst    = &deliveryMetrics{}
	kafkaMetricsInst  = &deliveryMetrics{}
	queuedMetricsInst = &deliveryMetrics{}
)

func (dm *deliveryMetrics) init(tel *telemetry.Telemetry) {
	dm.once.Do(func() {
		dm.initMetrics(tel)
	})
}

func (dm *deliveryMetrics) initMetrics(tel *telemetry.Telemetry) {
	tel.NewCounter("delivered_messages", func() int64 { return dm.deliveredMessages.Load() })
	tel.NewCounter("delivered_bytes", func() int64 { return dm.deliveredBytes.Load() })
	tel.NewCounter("failed_writes", func() int64 { return dm.failedWrites.Load() })
}

func (dm *deliveryMetrics) addDelivered(bytes int) {
	dm.deliveredMessages.Add(1)
	dm.deliveredBytes.Add(int64(bytes))
}

func (dm *deliveryMetrics) incrementFailedWrites() {
	dm.failedWrites.Add(1)
}
