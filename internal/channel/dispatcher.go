package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EvanL1/VoltageEMS-sub005/internal/codec"
	"github.com/EvanL1/VoltageEMS-sub005/internal/monitor"
	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
	"github.com/EvanL1/VoltageEMS-sub005/internal/store"
)

// ErrUnknownPoint 命令引用的点位不在通道遥控/遥调点表中，
// 立即拒绝且不重试
var ErrUnknownPoint = errors.New("未知点位")

// popWait 单次队列等待窗口，兼做停机信号检查周期
const popWait = time.Second

// Dispatcher 命令分发器：按 FIFO 消费通道命令队列并执行下发。
// 投递语义为至少一次，执行失败不自动重试，结果回写实时库。
type Dispatcher struct {
	sup *Supervisor
	rt  store.Store
	log *logrus.Entry
}

func NewDispatcher(sup *Supervisor, rt store.Store, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		sup: sup,
		rt:  rt,
		log: log.WithField("channel", sup.ID()).WithField("role", "dispatcher"),
	}
}

// Run 循环消费命令队列直至 ctx 取消
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		cmd, err := d.rt.PopCommand(ctx, d.sup.ID(), popWait)
		if err != nil {
			if errors.Is(err, store.ErrNoCommand) || ctx.Err() != nil {
				continue
			}
			d.log.Errorf("取命令失败: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popWait):
			}
			continue
		}
		d.execute(ctx, cmd)
	}
}

// execute 单条命令：校验 -> 编码 -> 下发 -> 回写结果
func (d *Dispatcher) execute(ctx context.Context, cmd *store.Command) {
	res := &store.CommandResult{
		CommandID:  cmd.ID,
		PointID:    cmd.PointID,
		FinishedAt: time.Now(),
	}

	err := d.apply(ctx, cmd)
	if err != nil {
		res.Error = err.Error()
		d.log.Warnf("命令 %s 执行失败: 点位 %s/%d, %v", cmd.ID, cmd.Category, cmd.PointID, err)
		monitor.CommandsTotal.WithLabelValues(d.sup.label(), "error").Inc()
	} else {
		res.Success = true
		d.log.Infof("命令 %s 执行成功: 点位 %s/%d = %v", cmd.ID, cmd.Category, cmd.PointID, cmd.Value)
		monitor.CommandsTotal.WithLabelValues(d.sup.label(), "ok").Inc()
	}

	res.FinishedAt = time.Now()
	if rerr := d.rt.RecordCommandResult(ctx, d.sup.ID(), res); rerr != nil {
		d.log.Errorf("回写命令结果失败: %v", rerr)
	}
}

func (d *Dispatcher) apply(ctx context.Context, cmd *store.Command) error {
	if !cmd.Category.Writable() {
		return fmt.Errorf("%w: 类别 %s 不可下发", ErrUnknownPoint, cmd.Category)
	}
	e := d.sup.Table().Get(cmd.Category, cmd.PointID)
	if e == nil {
		return fmt.Errorf("%w: %s/%d", ErrUnknownPoint, cmd.Category, cmd.PointID)
	}

	p, m := e.Point, e.Mapping

	// 遥控/布尔点：位编码后写入
	if cmd.Category == points.Control || p.DataType == points.TypeBool {
		on := codec.EncodeBit(cmd.Value != 0, p.Reverse)
		if err := d.sup.writeBit(ctx, m, on); err != nil {
			return err
		}
		return d.cacheValue(ctx, cmd, boolText(cmd.Value != 0))
	}

	// 遥调/模拟点：工程值反算原始值后编码写入
	raw, err := codec.FromEngineering(cmd.Value, p.Scale, p.Offset)
	if err != nil {
		return err
	}
	words, err := codec.Encode(raw, p.DataType, m.ByteOrder)
	if err != nil {
		return err
	}
	if err := d.sup.writePoint(ctx, m, words); err != nil {
		return err
	}
	return d.cacheValue(ctx, cmd, codec.FormatValue(cmd.Value))
}

// cacheValue 下发成功后回写最新值缓存，供上层立即可见
func (d *Dispatcher) cacheValue(ctx context.Context, cmd *store.Command, text string) error {
	now := time.Now()
	err := d.rt.PublishValues(ctx, cmd.ChannelID, cmd.Category,
		map[int]string{cmd.PointID: text},
		map[int]time.Time{cmd.PointID: now})
	if err != nil {
		d.log.Errorf("回写值缓存失败: %v", err)
	}
	return nil
}

func boolText(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
