// Package service 组装网关：实时库、监控、各通道的监护与分发器。
package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EvanL1/VoltageEMS-sub005/internal/channel"
	"github.com/EvanL1/VoltageEMS-sub005/internal/config"
	"github.com/EvanL1/VoltageEMS-sub005/internal/monitor"
	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
	"github.com/EvanL1/VoltageEMS-sub005/internal/protocol"
	"github.com/EvanL1/VoltageEMS-sub005/internal/store"
	"github.com/EvanL1/VoltageEMS-sub005/internal/transport"
)

type Service struct {
	config      *config.Config
	rt          store.Store
	monitor     *monitor.Monitor
	log         *logrus.Logger
	supervisors []*channel.Supervisor
	dispatchers []*channel.Dispatcher
	wg          sync.WaitGroup
	cancel      context.CancelFunc
	shutdown    chan struct{}
}

// NewService 装配全部组件。单通道点表非法只跳过该通道，
// 不影响其它通道启动。
func NewService(cfg *config.Config, log *logrus.Logger) (*Service, error) {
	rt, err := store.NewRedisStore(
		cfg.Redis.Addr,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
		log,
	)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:   cfg,
		rt:       rt,
		log:      log,
		shutdown: make(chan struct{}),
	}
	s.monitor = monitor.NewMonitor(log, s.channelStatus)

	for _, ch := range cfg.Channels {
		sup, err := buildChannel(ch, rt, log)
		if err != nil {
			// 配置错误只作用于本通道，运维经日志与健康接口感知
			log.Errorf("通道 %d 启动失败: %v", ch.ID, err)
			continue
		}
		s.supervisors = append(s.supervisors, sup)
		s.dispatchers = append(s.dispatchers, channel.NewDispatcher(sup, rt, log))
	}

	if len(s.supervisors) == 0 {
		rt.Close()
		return nil, fmt.Errorf("没有可用通道")
	}
	return s, nil
}

// buildChannel 按配置构造链路、协议插件与点表
func buildChannel(cfg config.ChannelConfig, rt store.Store, log *logrus.Logger) (*channel.Supervisor, error) {
	table, err := points.LoadTable(cfg.ID, cfg.PointTable, cfg.MappingTable)
	if err != nil {
		return nil, err
	}

	var tr transport.Transport
	switch cfg.Protocol {
	case protocol.NameModbusTCP:
		tr = transport.NewTCP(cfg.Host, cfg.Port, cfg.Timeout)
	case protocol.NameModbusRTU:
		tr = transport.NewSerial(transport.SerialConfig{
			Device:   cfg.Device,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			Parity:   cfg.Parity,
			StopBits: cfg.StopBits,
			Timeout:  cfg.Timeout,
		})
	}

	plugin, err := protocol.New(cfg.Protocol, tr)
	if err != nil {
		return nil, err
	}
	return channel.NewSupervisor(cfg, plugin, table, rt, log), nil
}

// Start 启动全部通道并阻塞至停机
func (s *Service) Start() error {
	if s.config.Monitor.Enabled {
		s.monitor.StartMetricsServer(s.config.Monitor.MetricsPort)
		s.monitor.StartRuntimeMonitor()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := range s.supervisors {
		sup := s.supervisors[i]
		disp := s.dispatchers[i]
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			sup.Run(ctx)
		}()
		go func() {
			defer s.wg.Done()
			disp.Run(ctx)
		}()
	}

	s.log.Infof("网关启动成功: %d 条通道", len(s.supervisors))

	s.handleSignals()
	return nil
}

// handleSignals SIGINT/SIGTERM 优雅停机，SIGHUP 触发点表热加载
func (s *Service) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			s.log.Info("收到SIGHUP, 热加载全部通道点表")
			for _, sup := range s.supervisors {
				if err := sup.Reload(); err != nil {
					s.log.Errorf("通道 %d 点表热加载失败: %v", sup.ID(), err)
				}
			}
			continue
		}

		s.log.Infof("收到信号: %v, 开始优雅关闭...", sig)
		break
	}

	close(s.shutdown)
	s.cancel()

	// 等待通道停止（最多30秒）
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("所有通道已停止")
	case <-time.After(30 * time.Second):
		s.log.Warn("关闭超时，强制退出")
	}

	if err := s.rt.Close(); err != nil {
		s.log.Errorf("关闭实时库连接失败: %v", err)
	}

	s.log.Info("网关已关闭")
}

// channelStatus 全通道健康状态快照，/channels 端点使用
func (s *Service) channelStatus() map[int]interface{} {
	out := make(map[int]interface{}, len(s.supervisors))
	for _, sup := range s.supervisors {
		out[sup.ID()] = sup.Status()
	}
	return out
}
