// Package protocol 实现协议插件：把点位映射级别的读写请求翻译为
// 具体规约的报文交互。当前提供 Modbus TCP、Modbus RTU 与虚拟规约
// 三种变体，经工厂按配置名选择。
package protocol

import (
	"context"
	"fmt"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
	"github.com/EvanL1/VoltageEMS-sub005/internal/transport"
)

// 规约名称，通道配置中使用
const (
	NameModbusTCP = "modbus_tcp"
	NameModbusRTU = "modbus_rtu"
	NameVirtual   = "virtual"
)

// Plugin 协议插件。同一插件实例上的调用必须由调用方串行化。
type Plugin interface {
	// Connect 建立会话，已连接时幂等
	Connect(ctx context.Context) error
	// Disconnect 释放会话资源，尽力而为
	Disconnect() error
	// ReadBatch 批量采集。返回按点号的寄存器值与按点号的点级错误；
	// 连接级故障通过第三个返回值整体上报。
	ReadBatch(ctx context.Context, mappings []points.Mapping) (map[int][]uint16, map[int]error, error)
	// WritePoint 写寄存器点位（单寄存器或多寄存器）
	WritePoint(ctx context.Context, m points.Mapping, words []uint16) error
	// WriteBit 写位点位。寄存器内写位时执行读改写，
	// 不影响同寄存器的其他位点。
	WriteBit(ctx context.Context, m points.Mapping, on bool) error
}

// New 按规约名创建插件。virtual 不使用链路参数。
func New(name string, tr transport.Transport) (Plugin, error) {
	switch name {
	case NameModbusTCP:
		if tr == nil {
			return nil, fmt.Errorf("规约 %s 需要链路", name)
		}
		return newModbusTCP(tr), nil
	case NameModbusRTU:
		if tr == nil {
			return nil, fmt.Errorf("规约 %s 需要链路", name)
		}
		return newModbusRTU(tr), nil
	case NameVirtual:
		return NewVirtual(), nil
	default:
		return nil, fmt.Errorf("未知的规约: %q", name)
	}
}
