// Package channel 实现通道监护与命令分发。
//
// 每条通道一个监护 goroutine 驱动 连接 -> 采集 -> 上报 状态机，
// 一个分发 goroutine 消费命令队列。两者共享同一协议插件实例，
// 经互斥锁串行化访问；通道之间完全并行。
package channel

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EvanL1/VoltageEMS-sub005/internal/codec"
	"github.com/EvanL1/VoltageEMS-sub005/internal/config"
	"github.com/EvanL1/VoltageEMS-sub005/internal/monitor"
	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
	"github.com/EvanL1/VoltageEMS-sub005/internal/protocol"
	"github.com/EvanL1/VoltageEMS-sub005/internal/store"
)

// Supervisor 通道监护：独占协议插件与点表，驱动采集状态机
type Supervisor struct {
	cfg     config.ChannelConfig
	plugin  protocol.Plugin
	rt      store.Store
	log     *logrus.Entry
	backoff Backoff

	table atomic.Pointer[points.Table]

	// ioMu 串行化监护与分发器对插件/链路的访问，
	// 命令在当前采集批次完成后执行
	ioMu sync.Mutex

	state  atomic.Int32
	reload chan *points.Table

	mu    sync.Mutex
	stats stats

	// OnStateChange 状态迁移回调，测试观察状态序列用，Run 之前设置
	OnStateChange func(State)
}

type stats struct {
	consecFails  int
	totalPolls   uint64
	totalErrors  uint64
	lastError    string
	lastPollTime time.Time
}

// NewSupervisor 创建通道监护。点表装载失败属通道级配置错误，
// 由调用方决定跳过该通道。
func NewSupervisor(cfg config.ChannelConfig, plugin protocol.Plugin, table *points.Table,
	rt store.Store, log *logrus.Logger) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		plugin:  plugin,
		rt:      rt,
		log:     log.WithField("channel", cfg.ID),
		backoff: NewBackoff(cfg.Retry),
		reload:  make(chan *points.Table, 1),
	}
	s.table.Store(table)
	return s
}

// ID 通道号
func (s *Supervisor) ID() int { return s.cfg.ID }

// State 当前状态
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Table 当前点表快照
func (s *Supervisor) Table() *points.Table { return s.table.Load() }

// Swap 请求热加载：整表替换，在轮次间隙生效，不断开连接
func (s *Supervisor) Swap(t *points.Table) {
	for {
		select {
		case s.reload <- t:
			return
		default:
			// 丢弃未生效的旧请求，保留最新点表
			select {
			case <-s.reload:
			default:
			}
		}
	}
}

// Reload 从点表文件重新装载并请求热替换
func (s *Supervisor) Reload() error {
	t, err := points.LoadTable(s.cfg.ID, s.cfg.PointTable, s.cfg.MappingTable)
	if err != nil {
		return err
	}
	s.Swap(t)
	return nil
}

// Status 健康状态快照，对外诊断接口使用
func (s *Supervisor) Status() *store.ChannelStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &store.ChannelStatus{
		State:        s.State().String(),
		ConsecFails:  s.stats.consecFails,
		TotalPolls:   s.stats.totalPolls,
		TotalErrors:  s.stats.totalErrors,
		LastError:    s.stats.lastError,
		LastPollTime: s.stats.lastPollTime,
	}
}

// Run 驱动状态机直至 ctx 取消。任何设备故障都不会越过本函数
// 向外传播，一条通道的异常不影响其它通道。
func (s *Supervisor) Run(ctx context.Context) {
	defer func() {
		s.ioMu.Lock()
		s.plugin.Disconnect()
		s.ioMu.Unlock()
		s.setState(StateStopped)
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		s.ioMu.Lock()
		err := s.plugin.Connect(ctx)
		s.ioMu.Unlock()
		if err != nil {
			s.recordError(err)
			delay := s.backoff.Delay(attempt)
			attempt++
			s.log.Warnf("连接失败(第 %d 次): %v, %v 后重试", attempt, err, delay)
			s.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		s.setState(StateConnected)
		s.log.Info("连接成功, 进入采集")

		err = s.pollLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warnf("连接级故障, 断开重连: %v", err)
		s.ioMu.Lock()
		s.plugin.Disconnect()
		s.ioMu.Unlock()
		s.setState(StateDisconnected)
	}
}

// pollLoop 固定周期采集。连续连接级故障超过阈值时返回，
// 交由外层断开重连；点级故障仅跳过当前点，保留上一值。
func (s *Supervisor) pollLoop(ctx context.Context) error {
	s.setState(StatePolling)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	consecConn := 0
	for {
		// 热加载与停机请求在轮次之间处理，不打断在途报文
		select {
		case t := <-s.reload:
			s.setState(StateReloading)
			s.table.Store(t)
			s.log.Infof("点表热加载完成: 遥测 %d, 遥信 %d, 遥控 %d, 遥调 %d",
				t.Count(points.Telemetry), t.Count(points.Signal),
				t.Count(points.Control), t.Count(points.Adjustment))
			s.setState(StatePolling)
		default:
		}

		if err := s.pollOnce(ctx); err != nil {
			s.recordError(err)
			if protocol.IsConnectionError(err) {
				consecConn++
				monitor.PollErrors.WithLabelValues(s.label(), "connection").Inc()
				if consecConn >= s.cfg.FailureThreshold {
					return err
				}
			} else {
				monitor.PollErrors.WithLabelValues(s.label(), "device").Inc()
				s.log.Warnf("采集出错, 保留上一值: %v", err)
			}
		} else {
			consecConn = 0
			s.resetFails()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 采集一轮全部遥测+遥信并发布工程值
func (s *Supervisor) pollOnce(ctx context.Context) error {
	table := s.table.Load()
	entries := table.ReadEntries()
	if len(entries) == 0 {
		return nil
	}

	mappings := make([]points.Mapping, len(entries))
	byID := make(map[int]*points.Entry, len(entries))
	for i, e := range entries {
		mappings[i] = e.Mapping
		byID[e.Point.ID] = e
	}

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	s.ioMu.Lock()
	values, perPoint, err := s.plugin.ReadBatch(rctx, mappings)
	s.ioMu.Unlock()
	cancel()

	monitor.PollsTotal.WithLabelValues(s.label()).Inc()
	monitor.PollDuration.WithLabelValues(s.label()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	now := time.Now()
	published := map[points.Category]map[int]string{}
	stamps := map[points.Category]map[int]time.Time{}

	for id, words := range values {
		e := byID[id]
		if e == nil {
			continue
		}
		text, derr := s.decodeEntry(e, words)
		if derr != nil {
			// 解码失败按点级错误处理：跳过该点，保留上一值
			s.log.Warnf("点位 %s/%d 解码失败: %v", e.Point.Category, id, derr)
			monitor.PollErrors.WithLabelValues(s.label(), "decode").Inc()
			continue
		}
		cat := e.Point.Category
		if published[cat] == nil {
			published[cat] = make(map[int]string)
			stamps[cat] = make(map[int]time.Time)
		}
		published[cat][id] = text
		stamps[cat][id] = now
	}

	for id, perr := range perPoint {
		e := byID[id]
		if e == nil {
			continue
		}
		s.log.Warnf("点位 %s/%d 采集失败: %v", e.Point.Category, id, perr)
		monitor.PollErrors.WithLabelValues(s.label(), "point").Inc()
	}

	for cat, vals := range published {
		if err := s.rt.PublishValues(ctx, s.cfg.ID, cat, vals, stamps[cat]); err != nil {
			s.log.Errorf("发布点位值失败: %v", err)
			return nil // 实时库故障不计入设备连接故障
		}
		monitor.PointsPublished.WithLabelValues(s.label()).Add(float64(len(vals)))
	}

	s.mu.Lock()
	s.stats.totalPolls++
	s.stats.lastPollTime = now
	s.mu.Unlock()
	return nil
}

// decodeEntry 原始寄存器 -> 工程值文本
func (s *Supervisor) decodeEntry(e *points.Entry, words []uint16) (string, error) {
	p, m := e.Point, e.Mapping

	if p.Category == points.Signal || p.DataType == points.TypeBool {
		if len(words) == 0 {
			return "", codec.ErrInsufficientData
		}
		v := codec.DecodeBit(words[0], m.BitPos, p.Reverse)
		if v {
			return "1", nil
		}
		return "0", nil
	}

	if p.DataType.IsString() {
		return codec.DecodeString(words, p.DataType)
	}

	raw, err := codec.Decode(words, p.DataType, m.ByteOrder)
	if err != nil {
		return "", err
	}
	return codec.FormatValue(codec.ToEngineering(raw, p.Scale, p.Offset)), nil
}

// writeBit 分发器入口：写位点位，与采集共用互斥锁
func (s *Supervisor) writeBit(ctx context.Context, m points.Mapping, on bool) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.plugin.WriteBit(wctx, m, on)
}

// writePoint 分发器入口：写寄存器点位，与采集共用互斥锁
func (s *Supervisor) writePoint(ctx context.Context, m points.Mapping, words []uint16) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	return s.plugin.WritePoint(wctx, m, words)
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	monitor.ChannelState.WithLabelValues(s.label()).Set(float64(st))
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
	s.publishStatus()
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.stats.consecFails++
	s.stats.totalErrors++
	s.stats.lastError = err.Error()
	s.mu.Unlock()
	s.publishStatus()
}

func (s *Supervisor) resetFails() {
	s.mu.Lock()
	s.stats.consecFails = 0
	s.mu.Unlock()
}

// publishStatus 健康状态写入实时库，失败只记日志
func (s *Supervisor) publishStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.rt.SetChannelStatus(ctx, s.cfg.ID, s.Status()); err != nil {
		s.log.Debugf("回写通道状态失败: %v", err)
	}
}

func (s *Supervisor) label() string {
	return strconv.Itoa(s.cfg.ID)
}
