package protocol

import (
	"context"
	"fmt"

	"github.com/EvanL1/VoltageEMS-sub005/internal/transport"
)

// modbusRTU Modbus RTU 主站，共享总线上按从站地址寻址
type modbusRTU struct {
	master
	conn      *rtuConn
	connected bool
}

// rtuConn 在 Transport 上实现 RTU 帧（地址 + PDU + CRC）
type rtuConn struct {
	tr transport.Transport
}

func newModbusRTU(tr transport.Transport) *modbusRTU {
	c := &rtuConn{tr: tr}
	p := &modbusRTU{conn: c}
	p.master.ex = c
	return p
}

func (p *modbusRTU) Connect(ctx context.Context) error {
	if p.connected {
		return nil
	}
	if err := p.conn.tr.Open(ctx); err != nil {
		kind := KindRefused
		if isTimeout(err) {
			kind = KindTimeout
		}
		return &ConnectError{Kind: kind, Err: err}
	}
	p.connected = true
	return nil
}

func (p *modbusRTU) Disconnect() error {
	p.connected = false
	return p.conn.tr.Close()
}

// exchange 发送 RTU 帧并读取应答，校验地址与 CRC
func (c *rtuConn) exchange(ctx context.Context, slave uint8, pdu []byte) ([]byte, error) {
	adu := make([]byte, 0, len(pdu)+3)
	adu = append(adu, slave)
	adu = append(adu, pdu...)
	crc := crc16(adu)
	adu = append(adu, byte(crc), byte(crc>>8))

	if err := c.tr.Send(ctx, adu); err != nil {
		return nil, err
	}

	buf := make([]byte, 256)
	n, err := c.tr.Receive(ctx, buf)
	if err != nil {
		return nil, err
	}
	if n < 4 {
		return nil, fmt.Errorf("应答过短: %d 字节", n)
	}
	resp := buf[:n]
	got := uint16(resp[n-2]) | uint16(resp[n-1])<<8
	if crc16(resp[:n-2]) != got {
		return nil, fmt.Errorf("CRC 校验失败")
	}
	if resp[0] != slave {
		return nil, fmt.Errorf("从站地址不匹配: 期望 %d, 实际 %d", slave, resp[0])
	}
	return resp[1 : n-2], nil
}
