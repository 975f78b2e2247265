package protocol

import (
	"context"
	"fmt"
	"sort"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

// 批量采集合并参数：相邻地址合并为一次请求以减少往返
const (
	maxRegsPerReq = 120 // 单次请求最大寄存器数
	maxBitsPerReq = 960 // 单次请求最大位数
	maxGap        = 10  // 允许合并的最大地址空洞
)

// exchanger 由具体规约变体实现：一问一答交互一个 PDU
type exchanger interface {
	exchange(ctx context.Context, slave uint8, pdu []byte) ([]byte, error)
}

// master 规约主站的公共逻辑：分组合并、应答切分、读改写。
// TCP 与 RTU 变体仅在帧格式上不同，均嵌入本类型。
type master struct {
	ex exchanger
}

// readGroup 一次合并请求覆盖的映射集合
type readGroup struct {
	slave   uint8
	fc      uint8
	start   uint16
	count   uint16
	members []points.Mapping
}

// groupMappings 将映射按 (从站, 功能码) 分组并按地址合并成请求组
func groupMappings(mappings []points.Mapping) []readGroup {
	type key struct {
		slave uint8
		fc    uint8
	}
	buckets := make(map[key][]points.Mapping)
	for _, m := range mappings {
		k := key{m.SlaveID, m.FuncCode}
		buckets[k] = append(buckets[k], m)
	}

	var keys []key
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].slave != keys[j].slave {
			return keys[i].slave < keys[j].slave
		}
		return keys[i].fc < keys[j].fc
	})

	var groups []readGroup
	for _, k := range keys {
		ms := buckets[k]
		sort.Slice(ms, func(i, j int) bool { return ms[i].Address < ms[j].Address })

		maxPer := uint16(maxRegsPerReq)
		if isBitFunc(k.fc) {
			maxPer = maxBitsPerReq
		}
		var cur *readGroup
		for _, m := range ms {
			qty := m.Quantity
			if isBitFunc(k.fc) {
				qty = 1
			}
			end := m.Address + qty
			if cur != nil {
				gap := int(m.Address) - int(cur.start+cur.count)
				if gap <= maxGap && end-cur.start <= maxPer {
					if end > cur.start+cur.count {
						cur.count = end - cur.start
					}
					cur.members = append(cur.members, m)
					continue
				}
				groups = append(groups, *cur)
			}
			cur = &readGroup{slave: k.slave, fc: k.fc, start: m.Address, count: qty, members: []points.Mapping{m}}
		}
		if cur != nil {
			groups = append(groups, *cur)
		}
	}
	return groups
}

// ReadBatch 按组发起请求。设备异常按组内各点记为点级错误，
// 链路故障整体上报并中止本轮。
func (ma *master) ReadBatch(ctx context.Context, mappings []points.Mapping) (map[int][]uint16, map[int]error, error) {
	values := make(map[int][]uint16)
	errs := make(map[int]error)

	for _, g := range groupMappings(mappings) {
		pdu := buildReadPDU(g.fc, g.start, g.count)
		resp, err := ma.ex.exchange(ctx, g.slave, pdu)
		if err != nil {
			return nil, nil, &ReadError{Kind: classify(err), Err: err}
		}
		if code, ok := checkException(resp); ok {
			// 一组失败不影响其它组，组内各点记点级错误
			for _, m := range g.members {
				errs[m.PointID] = &ReadError{Kind: KindDevice, Code: code}
			}
			continue
		}

		if isBitFunc(g.fc) {
			bits, err := parseBitsResponse(resp, g.count)
			if err != nil {
				return nil, nil, &ReadError{Kind: KindDisconnected, Err: err}
			}
			for _, m := range g.members {
				v := uint16(0)
				if bits[m.Address-g.start] {
					v = 1
				}
				values[m.PointID] = []uint16{v}
			}
		} else {
			words, err := parseRegsResponse(resp, g.count)
			if err != nil {
				return nil, nil, &ReadError{Kind: KindDisconnected, Err: err}
			}
			for _, m := range g.members {
				off := m.Address - g.start
				values[m.PointID] = words[off : off+m.Quantity]
			}
		}
	}
	return values, errs, nil
}

// WritePoint 写寄存器点位，按映射功能码选择 0x06 或 0x10
func (ma *master) WritePoint(ctx context.Context, m points.Mapping, words []uint16) error {
	var pdu []byte
	switch {
	case len(words) == 0:
		return &WriteError{Kind: KindRejected, Err: fmt.Errorf("无写入数据")}
	case len(words) == 1 && m.FuncCode != FuncWriteRegs:
		pdu = buildWriteRegPDU(m.Address, words[0])
	default:
		pdu = buildWriteRegsPDU(m.Address, words)
	}
	return ma.write(ctx, m.SlaveID, pdu)
}

// WriteBit 写位点位。线圈直接写 0x05；寄存器位执行读改写，
// 同寄存器其他位保持不变。
func (ma *master) WriteBit(ctx context.Context, m points.Mapping, on bool) error {
	if m.FuncCode == FuncWriteCoil || m.FuncCode == FuncReadCoils {
		return ma.write(ctx, m.SlaveID, buildWriteCoilPDU(m.Address, on))
	}

	// 读改写
	resp, err := ma.ex.exchange(ctx, m.SlaveID, buildReadPDU(FuncReadHolding, m.Address, 1))
	if err != nil {
		return &WriteError{Kind: classify(err), Err: err}
	}
	if code, ok := checkException(resp); ok {
		return &WriteError{Kind: KindRejected, Code: code}
	}
	words, err := parseRegsResponse(resp, 1)
	if err != nil {
		return &WriteError{Kind: KindDisconnected, Err: err}
	}
	reg := words[0]
	if on {
		reg |= 1 << m.BitPos
	} else {
		reg &^= 1 << m.BitPos
	}
	return ma.write(ctx, m.SlaveID, buildWriteRegPDU(m.Address, reg))
}

func (ma *master) write(ctx context.Context, slave uint8, pdu []byte) error {
	resp, err := ma.ex.exchange(ctx, slave, pdu)
	if err != nil {
		return &WriteError{Kind: classify(err), Err: err}
	}
	if code, ok := checkException(resp); ok {
		return &WriteError{Kind: KindRejected, Code: code}
	}
	return nil
}
