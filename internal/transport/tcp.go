package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPTransport 面向连接的 TCP 链路
type TCPTransport struct {
	addr    string
	timeout time.Duration
	conn    net.Conn
}

// NewTCP 创建 TCP 链路，timeout 同时作为连接与读写超时
func NewTCP(host string, port int, timeout time.Duration) *TCPTransport {
	return &TCPTransport{
		addr:    fmt.Sprintf("%s:%d", host, port),
		timeout: timeout,
	}
}

func (t *TCPTransport) Open(ctx context.Context) error {
	if t.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: t.timeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("连接 %s 失败: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	if t.conn == nil {
		return ErrNotOpen
	}
	t.conn.SetWriteDeadline(deadline(ctx, t.timeout))
	if _, err := t.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (t *TCPTransport) Receive(ctx context.Context, buf []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotOpen
	}
	t.conn.SetReadDeadline(deadline(ctx, t.timeout))
	return t.conn.Read(buf)
}

// ReceiveFull 读满 buf 为止，TCP 帧头定长解析使用
func (t *TCPTransport) ReceiveFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := t.Receive(ctx, buf[read:])
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

// deadline 取 ctx 截止时间与默认超时中较早者
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}
