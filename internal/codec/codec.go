// Package codec 实现原始报文值与工程值之间的纯转换。
//
// 采集方向: 寄存器字序列 -> 按字节序重组 -> 数值类型解释 -> 系数/基值换算
// 下发方向: 与采集方向完全互逆
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

var (
	// ErrUnsupportedEncoding 数据类型与字节序组合不支持
	ErrUnsupportedEncoding = errors.New("不支持的编码组合")
	// ErrInsufficientData 寄存器数量少于数据类型要求
	ErrInsufficientData = errors.New("寄存器数据不足")
	// ErrDivisionByZero 系数为零时无法反算原始值
	ErrDivisionByZero = errors.New("系数为零")
)

// Decode 将寄存器字序列按字节序重组后解释为数值
func Decode(words []uint16, dt points.DataType, order points.ByteOrder) (float64, error) {
	if dt.IsString() || dt.Words() == 0 || !validOrder(order) {
		return 0, fmt.Errorf("%w: %s/%s", ErrUnsupportedEncoding, dt, order)
	}
	buf, err := orderBytes(words, dt, order)
	if err != nil {
		return 0, err
	}
	switch dt {
	case points.TypeBool, points.TypeUint16:
		return float64(binary.BigEndian.Uint16(buf)), nil
	case points.TypeInt16:
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	case points.TypeUint32:
		return float64(binary.BigEndian.Uint32(buf)), nil
	case points.TypeInt32:
		return float64(int32(binary.BigEndian.Uint32(buf))), nil
	case points.TypeFloat32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case points.TypeUint64:
		return float64(binary.BigEndian.Uint64(buf)), nil
	case points.TypeInt64:
		return float64(int64(binary.BigEndian.Uint64(buf))), nil
	case points.TypeFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("%w: %s/%s", ErrUnsupportedEncoding, dt, order)
	}
}

// Encode 将数值编码为寄存器字序列，Decode 的逆运算
func Encode(value float64, dt points.DataType, order points.ByteOrder) ([]uint16, error) {
	if dt.IsString() || dt.Words() == 0 || !validOrder(order) {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedEncoding, dt, order)
	}
	buf := make([]byte, dt.Words()*2)
	switch dt {
	case points.TypeBool, points.TypeUint16:
		binary.BigEndian.PutUint16(buf, uint16(math.Round(value)))
	case points.TypeInt16:
		binary.BigEndian.PutUint16(buf, uint16(int16(math.Round(value))))
	case points.TypeUint32:
		binary.BigEndian.PutUint32(buf, uint32(math.Round(value)))
	case points.TypeInt32:
		binary.BigEndian.PutUint32(buf, uint32(int32(math.Round(value))))
	case points.TypeFloat32:
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
	case points.TypeUint64:
		binary.BigEndian.PutUint64(buf, uint64(math.Round(value)))
	case points.TypeInt64:
		binary.BigEndian.PutUint64(buf, uint64(int64(math.Round(value))))
	case points.TypeFloat64:
		binary.BigEndian.PutUint64(buf, math.Float64bits(value))
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedEncoding, dt, order)
	}
	reorder(buf, order)
	words := make([]uint16, dt.Words())
	for i := range words {
		words[i] = binary.BigEndian.Uint16(buf[i*2:])
	}
	return words, nil
}

// DecodeString 将寄存器字序列解释为字符串，尾部 NUL 截断
func DecodeString(words []uint16, dt points.DataType) (string, error) {
	if !dt.IsString() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEncoding, dt)
	}
	if len(words) < dt.Words() {
		return "", fmt.Errorf("%w: 需要 %d 字, 实际 %d 字", ErrInsufficientData, dt.Words(), len(words))
	}
	buf := make([]byte, dt.Words()*2)
	for i := 0; i < dt.Words(); i++ {
		binary.BigEndian.PutUint16(buf[i*2:], words[i])
	}
	return strings.TrimRight(string(buf), "\x00"), nil
}

// ToEngineering 原始值换算为工程值: value = raw*scale + offset
func ToEngineering(raw, scale, offset float64) float64 {
	return raw*scale + offset
}

// FromEngineering 工程值反算为原始值: raw = (value-offset)/scale
func FromEngineering(value, scale, offset float64) (float64, error) {
	if scale == 0 {
		return 0, ErrDivisionByZero
	}
	return (value - offset) / scale, nil
}

// DecodeBit 提取寄存器中的单个位，reverse 为真时取反
func DecodeBit(reg uint16, bit uint8, reverse bool) bool {
	v := (reg>>bit)&1 == 1
	if reverse {
		v = !v
	}
	return v
}

// EncodeBit DecodeBit 的逆运算，返回写入线上应置的原始位
func EncodeBit(value bool, reverse bool) bool {
	if reverse {
		return !value
	}
	return value
}

// SetBit 在寄存器中置入单个位，其余位保持不变
func SetBit(reg uint16, bit uint8, on bool) uint16 {
	if on {
		return reg | 1<<bit
	}
	return reg &^ (1 << bit)
}

// FormatValue 工程值的入库格式：浮点统一保留 6 位小数
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func validOrder(order points.ByteOrder) bool {
	switch order {
	case points.OrderABCD, points.OrderDCBA, points.OrderBADC, points.OrderCDAB, "":
		return true
	}
	return false
}

// orderBytes 将寄存器字序列转为按 ABCD 规范排列的大端字节序
func orderBytes(words []uint16, dt points.DataType, order points.ByteOrder) ([]byte, error) {
	need := dt.Words()
	if len(words) < need {
		return nil, fmt.Errorf("%w: 需要 %d 字, 实际 %d 字", ErrInsufficientData, need, len(words))
	}
	buf := make([]byte, need*2)
	for i := 0; i < need; i++ {
		binary.BigEndian.PutUint16(buf[i*2:], words[i])
	}
	reorder(buf, order)
	return buf, nil
}

// reorder 按字节序重排字节。四种字节序均为自逆变换，编码解码共用。
func reorder(buf []byte, order points.ByteOrder) {
	switch order {
	case points.OrderABCD, "":
		// 原样
	case points.OrderDCBA:
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	case points.OrderBADC:
		for i := 0; i+1 < len(buf); i += 2 {
			buf[i], buf[i+1] = buf[i+1], buf[i]
		}
	case points.OrderCDAB:
		for i, j := 0, len(buf)-2; i < j; i, j = i+2, j-2 {
			buf[i], buf[j] = buf[j], buf[i]
			buf[i+1], buf[j+1] = buf[j+1], buf[i+1]
		}
	}
}
