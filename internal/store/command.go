package store

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// Command 待执行的遥控/遥调命令。
// 投递语义为至少一次：分发器执行失败不自动重试，
// 需要保证执行的调用方自行重新入队。
type Command struct {
	ID         string          `json:"id"`
	ChannelID  int             `json:"channel_id"`
	PointID    int             `json:"point_id"`
	Category   points.Category `json:"category"`
	Value      float64         `json:"value"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Priority   int             `json:"priority,omitempty"`
}

// NewCommandID 生成命令标识：时间戳 + 随机数
func NewCommandID() string {
	return fmt.Sprintf("%d-%04d", time.Now().UnixNano(), rand.Intn(10000))
}

// Validate 入队前的基本校验
func (c *Command) Validate() error {
	if c.ChannelID <= 0 {
		return fmt.Errorf("通道号非法: %d", c.ChannelID)
	}
	if c.PointID <= 0 {
		return fmt.Errorf("点号非法: %d", c.PointID)
	}
	if !c.Category.Writable() {
		return fmt.Errorf("类别 %s 不可下发", c.Category)
	}
	return nil
}
