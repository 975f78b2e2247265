// Package store 封装实时库访问：点位值发布与命令队列消费。
// 实时库按 通道:类别 组织散列，命令以 FIFO 队列排队。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// ErrNoCommand 队列在等待窗口内无命令
var ErrNoCommand = errors.New("队列为空")

// ChannelStatus 通道对外健康状态
type ChannelStatus struct {
	State        string    `json:"state"`
	ConsecFails  int       `json:"consecutive_failures"`
	TotalPolls   uint64    `json:"total_polls"`
	TotalErrors  uint64    `json:"total_errors"`
	LastError    string    `json:"last_error,omitempty"`
	LastPollTime time.Time `json:"last_poll_time"`
}

// CommandResult 命令执行结果回写
type CommandResult struct {
	CommandID  string    `json:"command_id"`
	PointID    int       `json:"point_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store 实时库句柄。通道监护与命令分发器经构造注入，
// 不使用进程级单例，测试以内存实现替换。
type Store interface {
	// PublishValues 发布一批点位工程值与各自的采集时标
	PublishValues(ctx context.Context, channelID int, cat points.Category,
		values map[int]string, ts map[int]time.Time) error
	// PushCommand 命令入队（生产侧，FIFO 尾部）
	PushCommand(ctx context.Context, cmd *Command) error
	// PopCommand 从通道的遥控/遥调队列头部取一条命令，
	// 最多阻塞 wait；无命令返回 ErrNoCommand
	PopCommand(ctx context.Context, channelID int, wait time.Duration) (*Command, error)
	// RecordCommandResult 回写命令执行结果供外部查询
	RecordCommandResult(ctx context.Context, channelID int, res *CommandResult) error
	// SetChannelStatus 回写通道健康状态
	SetChannelStatus(ctx context.Context, channelID int, st *ChannelStatus) error
	// Close 释放连接资源
	Close() error
}

// 实时库键布局
func valueKey(channelID int, cat points.Category) string {
	return fmt.Sprintf("%d:%s", channelID, cat)
}

func tsKey(channelID int, cat points.Category) string {
	return fmt.Sprintf("%d:%s:ts", channelID, cat)
}

func queueKey(channelID int, cat points.Category) string {
	return fmt.Sprintf("%d:%s:TODO", channelID, cat)
}

func resultKey(channelID int) string {
	return fmt.Sprintf("%d:result", channelID)
}

func statusKey(channelID int) string {
	return fmt.Sprintf("channel:%d:status", channelID)
}
