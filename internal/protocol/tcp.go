package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/EvanL1/VoltageEMS-sub005/internal/transport"
)

// mbapHeaderSize Modbus TCP 报文头长度（事务号+协议号+长度+单元号）
const mbapHeaderSize = 7

// modbusTCP Modbus TCP 主站
type modbusTCP struct {
	master
	tr        *tcpConn
	connected bool
}

// tcpConn 在 Transport 上实现 MBAP 帧的封装与解析
type tcpConn struct {
	tr   transport.Transport
	txn  uint16
	full interface {
		ReceiveFull(ctx context.Context, buf []byte) error
	}
}

func newModbusTCP(tr transport.Transport) *modbusTCP {
	c := &tcpConn{tr: tr}
	if f, ok := tr.(interface {
		ReceiveFull(ctx context.Context, buf []byte) error
	}); ok {
		c.full = f
	}
	p := &modbusTCP{tr: c}
	p.master.ex = c
	return p
}

func (p *modbusTCP) Connect(ctx context.Context) error {
	if p.connected {
		return nil
	}
	if err := p.tr.tr.Open(ctx); err != nil {
		kind := KindRefused
		if isTimeout(err) {
			kind = KindTimeout
		} else if strings.Contains(err.Error(), "missing port") ||
			strings.Contains(err.Error(), "invalid") {
			kind = KindInvalidParams
		}
		return &ConnectError{Kind: kind, Err: err}
	}
	p.connected = true
	return nil
}

func (p *modbusTCP) Disconnect() error {
	p.connected = false
	return p.tr.tr.Close()
}

// exchange 发送一个 PDU 并等待同事务号的应答
func (c *tcpConn) exchange(ctx context.Context, slave uint8, pdu []byte) ([]byte, error) {
	c.txn++
	adu := make([]byte, mbapHeaderSize+len(pdu))
	binary.BigEndian.PutUint16(adu[0:], c.txn)
	// 协议号固定为 0
	binary.BigEndian.PutUint16(adu[4:], uint16(len(pdu)+1))
	adu[6] = slave
	copy(adu[mbapHeaderSize:], pdu)

	if err := c.tr.Send(ctx, adu); err != nil {
		return nil, err
	}

	// 定长报文头 + 长度域，按长度读取应答
	if c.full != nil {
		head := make([]byte, mbapHeaderSize)
		if err := c.full.ReceiveFull(ctx, head); err != nil {
			return nil, err
		}
		if got := binary.BigEndian.Uint16(head[0:]); got != c.txn {
			return nil, fmt.Errorf("事务号不匹配: 期望 %d, 实际 %d", c.txn, got)
		}
		plen := int(binary.BigEndian.Uint16(head[4:])) - 1
		if plen <= 0 || plen > 253 {
			return nil, fmt.Errorf("应答长度非法: %d", plen)
		}
		body := make([]byte, plen)
		if err := c.full.ReceiveFull(ctx, body); err != nil {
			return nil, err
		}
		return body, nil
	}

	// 链路不支持定长读取时按单帧读取（内存链路）
	buf := make([]byte, mbapHeaderSize+256)
	n, err := c.tr.Receive(ctx, buf)
	if err != nil {
		return nil, err
	}
	if n < mbapHeaderSize+2 {
		return nil, fmt.Errorf("应答过短: %d 字节", n)
	}
	if got := binary.BigEndian.Uint16(buf[0:]); got != c.txn {
		return nil, fmt.Errorf("事务号不匹配: 期望 %d, 实际 %d", c.txn, got)
	}
	return buf[mbapHeaderSize:n], nil
}
