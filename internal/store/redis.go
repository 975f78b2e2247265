package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// RedisStore 基于 Redis 的实时库实现
type RedisStore struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewRedisStore 建立 Redis 连接并探活
func NewRedisStore(addr, password string, db, poolSize int, log *logrus.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}

	log.Info("Redis连接成功")

	return &RedisStore{client: client, log: log}, nil
}

// PublishValues 管道批量写入值散列与时标散列
func (s *RedisStore) PublishValues(ctx context.Context, channelID int, cat points.Category,
	values map[int]string, ts map[int]time.Time) error {
	if len(values) == 0 {
		return nil
	}

	vals := make(map[string]interface{}, len(values))
	for id, v := range values {
		vals[strconv.Itoa(id)] = v
	}
	stamps := make(map[string]interface{}, len(ts))
	for id, t := range ts {
		stamps[strconv.Itoa(id)] = strconv.FormatInt(t.UnixMilli(), 10)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, valueKey(channelID, cat), vals)
	if len(stamps) > 0 {
		pipe.HSet(ctx, tsKey(channelID, cat), stamps)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("发布点位值失败: %w", err)
	}
	return nil
}

// PushCommand 序列化后追加到队列尾部
func (s *RedisStore) PushCommand(ctx context.Context, cmd *Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("序列化命令失败: %w", err)
	}
	if err := s.client.RPush(ctx, queueKey(cmd.ChannelID, cmd.Category), data).Err(); err != nil {
		return fmt.Errorf("命令入队失败: %w", err)
	}
	return nil
}

// PopCommand 阻塞弹出遥控/遥调队列头部的命令。
// 同一队列内严格 FIFO；遥控队列优先于遥调队列。
func (s *RedisStore) PopCommand(ctx context.Context, channelID int, wait time.Duration) (*Command, error) {
	res, err := s.client.BLPop(ctx, wait,
		queueKey(channelID, points.Control),
		queueKey(channelID, points.Adjustment),
	).Result()
	if err == redis.Nil {
		return nil, ErrNoCommand
	}
	if err != nil {
		return nil, fmt.Errorf("命令出队失败: %w", err)
	}
	// BLPOP 返回 [键名, 值]
	var cmd Command
	if err := json.Unmarshal([]byte(res[1]), &cmd); err != nil {
		return nil, fmt.Errorf("反序列化命令失败: %w", err)
	}
	return &cmd, nil
}

// RecordCommandResult 结果写入通道结果散列，键为命令标识
func (s *RedisStore) RecordCommandResult(ctx context.Context, channelID int, res *CommandResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("序列化命令结果失败: %w", err)
	}
	if err := s.client.HSet(ctx, resultKey(channelID), res.CommandID, data).Err(); err != nil {
		return fmt.Errorf("回写命令结果失败: %w", err)
	}
	return nil
}

// SetChannelStatus 健康状态整体覆盖写入
func (s *RedisStore) SetChannelStatus(ctx context.Context, channelID int, st *ChannelStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化通道状态失败: %w", err)
	}
	if err := s.client.Set(ctx, statusKey(channelID), data, 0).Err(); err != nil {
		return fmt.Errorf("回写通道状态失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Stats 连接池统计，诊断用
func (s *RedisStore) Stats() *redis.PoolStats {
	return s.client.PoolStats()
}
