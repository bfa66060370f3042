package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var startTime = time.Now()

// RegisterServerMetrics adds runtime, database pool, uptime and queue mode
// collectors to reg. The engine counters are registered by services.NewMetrics.
func RegisterServerMetrics(reg prometheus.Registerer, db *gorm.DB, queue services.TaskQueue) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "condovote_uptime_seconds",
		Help: "Time since server start in seconds",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	})
	queueAsync := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "condovote_queue_async_enabled",
		Help: "Whether async queue (Redis) is enabled (1=yes, 0=no)",
	}, func() float64 {
		if queue != nil && queue.IsAsync() {
			return 1
		}
		return 0
	})

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(sqlDB, "condovote"),
		uptime,
		queueAsync,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Metrics serves the gathered metrics in the Prometheus text format
func Metrics(gatherer prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
