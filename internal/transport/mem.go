package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// Exchange 一次预置的请求/响应对
type Exchange struct {
	Request  []byte
	Response []byte
	Err      error // 非空时 Receive 返回该错误
}

// MemTransport 内存链路，按脚本回放请求/响应，用于协议层测试
type MemTransport struct {
	mu         sync.Mutex
	exchanges  []Exchange
	pending    []byte
	pendingErr error
	opened     bool
	OpenErr    error // 预置 Open 失败
	OpenCount  int   // Open 调用计数
}

func NewMem(exchanges ...Exchange) *MemTransport {
	return &MemTransport{exchanges: exchanges}
}

// Append 追加预置报文交互
func (m *MemTransport) Append(exchanges ...Exchange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchanges = append(m.exchanges, exchanges...)
}

func (m *MemTransport) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCount++
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.opened = true
	return nil
}

func (m *MemTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

func (m *MemTransport) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return ErrNotOpen
	}
	if len(m.exchanges) == 0 {
		return fmt.Errorf("未预置的请求: % x", data)
	}
	ex := m.exchanges[0]
	if ex.Request != nil && !bytes.Equal(ex.Request, data) {
		return fmt.Errorf("请求不匹配: 期望 % x, 实际 % x", ex.Request, data)
	}
	m.exchanges = m.exchanges[1:]
	if ex.Err != nil {
		m.pending = nil
		m.pendingErr = ex.Err
		return nil
	}
	m.pending = ex.Response
	m.pendingErr = nil
	return nil
}

func (m *MemTransport) Receive(ctx context.Context, buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return 0, ErrNotOpen
	}
	if m.pendingErr != nil {
		err := m.pendingErr
		m.pendingErr = nil
		return 0, err
	}
	if m.pending == nil {
		return 0, ErrReadTimeout
	}
	n := copy(buf, m.pending)
	if n < len(m.pending) {
		m.pending = m.pending[n:]
	} else {
		m.pending = nil
	}
	return n, nil
}
