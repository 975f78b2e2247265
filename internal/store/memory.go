package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// MemStore 内存实时库，契约与 RedisStore 一致，测试使用
type MemStore struct {
	mu      sync.Mutex
	values  map[string]map[string]string // 键 -> 散列
	queues  map[string][]*Command
	results map[string]map[string]*CommandResult
	status  map[int]*ChannelStatus
}

func NewMemStore() *MemStore {
	return &MemStore{
		values:  make(map[string]map[string]string),
		queues:  make(map[string][]*Command),
		results: make(map[string]map[string]*CommandResult),
		status:  make(map[int]*ChannelStatus),
	}
}

func (s *MemStore) PublishValues(ctx context.Context, channelID int, cat points.Category,
	values map[int]string, ts map[int]time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := valueKey(channelID, cat)
	if s.values[key] == nil {
		s.values[key] = make(map[string]string)
	}
	for id, v := range values {
		s.values[key][itoa(id)] = v
	}
	tk := tsKey(channelID, cat)
	if s.values[tk] == nil {
		s.values[tk] = make(map[string]string)
	}
	for id, t := range ts {
		s.values[tk][itoa(id)] = itoa64(t.UnixMilli())
	}
	return nil
}

// Value 读取已发布的点位值，测试断言用
func (s *MemStore) Value(channelID int, cat points.Category, pointID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.values[valueKey(channelID, cat)]
	if !ok {
		return "", false
	}
	v, ok := h[itoa(pointID)]
	return v, ok
}

// Timestamp 读取点位时标，测试断言用
func (s *MemStore) Timestamp(channelID int, cat points.Category, pointID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.values[tsKey(channelID, cat)]
	if !ok {
		return "", false
	}
	v, ok := h[itoa(pointID)]
	return v, ok
}

func (s *MemStore) PushCommand(ctx context.Context, cmd *Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := queueKey(cmd.ChannelID, cmd.Category)
	s.queues[key] = append(s.queues[key], cmd)
	return nil
}

func (s *MemStore) PopCommand(ctx context.Context, channelID int, wait time.Duration) (*Command, error) {
	deadline := time.Now().Add(wait)
	for {
		s.mu.Lock()
		for _, cat := range []points.Category{points.Control, points.Adjustment} {
			key := queueKey(channelID, cat)
			if q := s.queues[key]; len(q) > 0 {
				cmd := q[0]
				s.queues[key] = q[1:]
				s.mu.Unlock()
				return cmd, nil
			}
		}
		s.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ErrNoCommand
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *MemStore) RecordCommandResult(ctx context.Context, channelID int, res *CommandResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey(channelID)
	if s.results[key] == nil {
		s.results[key] = make(map[string]*CommandResult)
	}
	s.results[key][res.CommandID] = res
	return nil
}

// CommandResult 查询命令结果，测试断言用
func (s *MemStore) CommandResult(channelID int, commandID string) (*CommandResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.results[resultKey(channelID)]
	if !ok {
		return nil, false
	}
	res, ok := h[commandID]
	return res, ok
}

func (s *MemStore) SetChannelStatus(ctx context.Context, channelID int, st *ChannelStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[channelID] = st
	return nil
}

// ChannelStatus 查询通道状态，测试断言用
func (s *MemStore) ChannelStatus(channelID int) (*ChannelStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[channelID]
	return st, ok
}

func (s *MemStore) Close() error { return nil }

func itoa(n int) string { return strconv.Itoa(n) }

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
