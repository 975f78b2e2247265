package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// 通道指标
	ChannelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_channel_state",
			Help: "通道状态 (0=断开 1=连接中 2=已连接 3=采集中 4=重载中 5=停止)",
		},
		[]string{"channel"},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_polls_total",
			Help: "采集轮次总数",
		},
		[]string{"channel"},
	)

	PollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_poll_errors_total",
			Help: "采集错误数",
		},
		[]string{"channel", "kind"},
	)

	PointsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_points_published_total",
			Help: "发布到实时库的点位值总数",
		},
		[]string{"channel"},
	)

	// 命令指标
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_commands_total",
			Help: "命令执行总数",
		},
		[]string{"channel", "result"},
	)

	// 延迟指标
	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_poll_duration_seconds",
			Help:    "单轮采集耗时",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// Goroutine指标
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_goroutines",
		Help: "当前Goroutine数量",
	})

	// 内存指标
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_memory_usage_bytes",
		Help: "内存使用量",
	})
)

// StatusProvider 通道健康状态快照，/channels 端点使用
type StatusProvider func() map[int]interface{}

type Monitor struct {
	log      *logrus.Logger
	statusFn StatusProvider
}

func NewMonitor(log *logrus.Logger, statusFn StatusProvider) *Monitor {
	// 注册指标
	prometheus.MustRegister(
		ChannelState,
		PollsTotal,
		PollErrors,
		PointsPublished,
		CommandsTotal,
		PollDuration,
		GoroutineCount,
		MemoryUsage,
	)

	return &Monitor{log: log, statusFn: statusFn}
}

// StartMetricsServer 启动Metrics HTTP服务器
func (m *Monitor) StartMetricsServer(port int) {
	http.Handle("/metrics", promhttp.Handler())

	// 健康检查端点
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// 通道状态端点，供运维与上层服务查询
	http.HandleFunc("/channels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if m.statusFn == nil {
			w.Write([]byte("{}"))
			return
		}
		json.NewEncoder(w).Encode(m.statusFn())
	})

	addr := fmt.Sprintf(":%d", port)
	m.log.Infof("Metrics服务器启动: %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			m.log.Errorf("Metrics服务器错误: %v", err)
		}
	}()
}

// StartRuntimeMonitor 启动运行时监控
func (m *Monitor) StartRuntimeMonitor() {
	ticker := time.NewTicker(10 * time.Second)

	go func() {
		for range ticker.C {
			GoroutineCount.Set(float64(runtime.NumGoroutine()))

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			MemoryUsage.Set(float64(memStats.Alloc))

			m.log.Debugf("Goroutines: %d, 内存: %.2f MB",
				runtime.NumGoroutine(),
				float64(memStats.Alloc)/1024/1024,
			)
		}
	}()
}
