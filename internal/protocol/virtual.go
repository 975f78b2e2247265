package protocol

import (
	"context"
	"sync"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// VirtualPlugin 虚拟规约：内存寄存器组模拟设备，契约与真实规约一致。
// 用于测试与演示通道，不经过链路。
type VirtualPlugin struct {
	mu        sync.Mutex
	regs      map[uint16]uint16
	coils     map[uint16]bool
	failAddrs map[uint16]uint8 // 预置的地址级异常码
	connErr   error            // 预置的连接失败
	connected bool
}

func NewVirtual() *VirtualPlugin {
	return &VirtualPlugin{
		regs:      make(map[uint16]uint16),
		coils:     make(map[uint16]bool),
		failAddrs: make(map[uint16]uint8),
	}
}

// SetRegister 预置寄存器值
func (v *VirtualPlugin) SetRegister(addr, value uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.regs[addr] = value
}

// Register 读取寄存器当前值
func (v *VirtualPlugin) Register(addr uint16) uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[addr]
}

// SetCoil 预置线圈状态
func (v *VirtualPlugin) SetCoil(addr uint16, on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.coils[addr] = on
}

// Coil 读取线圈当前状态
func (v *VirtualPlugin) Coil(addr uint16) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.coils[addr]
}

// FailAddress 预置某地址的设备异常码，模拟坏点
func (v *VirtualPlugin) FailAddress(addr uint16, code uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failAddrs[addr] = code
}

// FailConnect 预置连接失败
func (v *VirtualPlugin) FailConnect(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connErr = err
}

func (v *VirtualPlugin) Connect(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connErr != nil {
		return &ConnectError{Kind: KindTimeout, Err: v.connErr}
	}
	v.connected = true
	return nil
}

func (v *VirtualPlugin) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	return nil
}

// ReadBatch 逐点读取内存寄存器组，坏点记点级错误
func (v *VirtualPlugin) ReadBatch(ctx context.Context, mappings []points.Mapping) (map[int][]uint16, map[int]error, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return nil, nil, &ReadError{Kind: KindDisconnected}
	}

	values := make(map[int][]uint16)
	errs := make(map[int]error)
	for _, m := range mappings {
		if code, ok := v.failAddrs[m.Address]; ok {
			errs[m.PointID] = &ReadError{Kind: KindDevice, Code: code}
			continue
		}
		if isBitFunc(m.FuncCode) {
			val := uint16(0)
			if v.coils[m.Address] {
				val = 1
			}
			values[m.PointID] = []uint16{val}
			continue
		}
		words := make([]uint16, m.Quantity)
		for i := range words {
			words[i] = v.regs[m.Address+uint16(i)]
		}
		values[m.PointID] = words
	}
	return values, errs, nil
}

func (v *VirtualPlugin) WritePoint(ctx context.Context, m points.Mapping, words []uint16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return &WriteError{Kind: KindDisconnected}
	}
	if code, ok := v.failAddrs[m.Address]; ok {
		return &WriteError{Kind: KindRejected, Code: code}
	}
	for i, w := range words {
		v.regs[m.Address+uint16(i)] = w
	}
	return nil
}

func (v *VirtualPlugin) WriteBit(ctx context.Context, m points.Mapping, on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return &WriteError{Kind: KindDisconnected}
	}
	if code, ok := v.failAddrs[m.Address]; ok {
		return &WriteError{Kind: KindRejected, Code: code}
	}
	if m.FuncCode == FuncWriteCoil || m.FuncCode == FuncReadCoils {
		v.coils[m.Address] = on
		return nil
	}
	reg := v.regs[m.Address]
	if on {
		reg |= 1 << m.BitPos
	} else {
		reg &^= 1 << m.BitPos
	}
	v.regs[m.Address] = reg
	return nil
}
