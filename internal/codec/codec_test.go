package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
)

var byteOrders = []points.ByteOrder{
	points.OrderABCD, points.OrderDCBA, points.OrderBADC, points.OrderCDAB,
}

// 编码后解码应得到原值（各数据类型 × 各字节序）
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		dt    points.DataType
		value float64
	}{
		{points.TypeUint16, 2300},
		{points.TypeInt16, -1234},
		{points.TypeUint32, 3000000000},
		{points.TypeInt32, -123456},
		{points.TypeFloat32, float64(float32(3.14))},
		{points.TypeUint64, float64(uint64(1) << 50)},
		{points.TypeInt64, -1099511627776},
		{points.TypeFloat64, 123.456789},
	}

	for _, c := range cases {
		for _, order := range byteOrders {
			words, err := Encode(c.value, c.dt, order)
			if err != nil {
				t.Fatalf("Encode(%v, %s, %s): %v", c.value, c.dt, order, err)
			}
			if len(words) != c.dt.Words() {
				t.Fatalf("%s: 期望 %d 字, 实际 %d", c.dt, c.dt.Words(), len(words))
			}
			got, err := Decode(words, c.dt, order)
			if err != nil {
				t.Fatalf("Decode(%s, %s): %v", c.dt, order, err)
			}
			if got != c.value {
				t.Errorf("%s/%s: 期望 %v, 实际 %v", c.dt, order, c.value, got)
			}
		}
	}
}

// 四种字节序的重组结果
func TestDecodeByteOrders(t *testing.T) {
	words := []uint16{0x1234, 0x5678}
	cases := []struct {
		order points.ByteOrder
		want  float64
	}{
		{points.OrderABCD, float64(0x12345678)},
		{points.OrderDCBA, float64(0x78563412)},
		{points.OrderBADC, float64(0x34127856)},
		{points.OrderCDAB, float64(0x56781234)},
	}
	for _, c := range cases {
		got, err := Decode(words, points.TypeUint32, c.order)
		if err != nil {
			t.Fatalf("Decode(%s): %v", c.order, err)
		}
		if got != c.want {
			t.Errorf("%s: 期望 0x%X, 实际 0x%X", c.order, uint32(c.want), uint32(got))
		}
	}
}

// 场景：uint16 原始值 2300, 系数 0.1 -> 工程值 230.0
func TestTelemetryScaling(t *testing.T) {
	raw, err := Decode([]uint16{2300}, points.TypeUint16, points.OrderABCD)
	if err != nil {
		t.Fatal(err)
	}
	eng := ToEngineering(raw, 0.1, 0)
	if eng != 230.0 {
		t.Fatalf("期望 230.0, 实际 %v", eng)
	}
	if s := FormatValue(eng); s != "230.000000" {
		t.Fatalf("期望 230.000000, 实际 %s", s)
	}
}

// 工程值换算的往返律
func TestEngineeringRoundTrip(t *testing.T) {
	cases := []struct{ value, scale, offset float64 }{
		{230.0, 0.1, 0},
		{12.3, 0.1, 0},
		{-40.5, 0.5, -40},
		{1000, 2, 100},
	}
	for _, c := range cases {
		raw, err := FromEngineering(c.value, c.scale, c.offset)
		if err != nil {
			t.Fatal(err)
		}
		back := ToEngineering(raw, c.scale, c.offset)
		if math.Abs(back-c.value) > 1e-9 {
			t.Errorf("(%v, %v, %v): 往返后 %v", c.value, c.scale, c.offset, back)
		}
	}
}

func TestFromEngineeringZeroScale(t *testing.T) {
	if _, err := FromEngineering(1.0, 0, 5); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("期望 ErrDivisionByZero, 实际 %v", err)
	}
}

// 位编码解码的往返律：任意位置、任意取反
func TestBitRoundTrip(t *testing.T) {
	for pos := uint8(0); pos < 16; pos++ {
		for _, reverse := range []bool{false, true} {
			for _, v := range []bool{false, true} {
				raw := EncodeBit(v, reverse)
				reg := SetBit(0, pos, raw)
				if got := DecodeBit(reg, pos, reverse); got != v {
					t.Errorf("pos=%d reverse=%v v=%v: 实际 %v", pos, reverse, v, got)
				}
			}
		}
	}
}

// 取反遥信：线上位 1 -> 工程值 false
func TestReverseSignal(t *testing.T) {
	if DecodeBit(1, 0, true) {
		t.Fatal("取反后期望 false")
	}
	if !DecodeBit(0, 0, true) {
		t.Fatal("取反后期望 true")
	}
}

// SetBit 不应影响同寄存器其他位
func TestSetBitPreservesSiblings(t *testing.T) {
	reg := uint16(0b1010_0101)
	got := SetBit(reg, 1, true)
	if got != 0b1010_0111 {
		t.Fatalf("期望 %016b, 实际 %016b", 0b1010_0111, got)
	}
	got = SetBit(reg, 0, false)
	if got != 0b1010_0100 {
		t.Fatalf("期望 %016b, 实际 %016b", 0b1010_0100, got)
	}
}

func TestDecodeInsufficientData(t *testing.T) {
	if _, err := Decode([]uint16{1}, points.TypeFloat32, points.OrderABCD); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("期望 ErrInsufficientData, 实际 %v", err)
	}
}

func TestDecodeUnsupported(t *testing.T) {
	if _, err := Decode([]uint16{1, 2}, points.TypeUint32, "XXXX"); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("期望 ErrUnsupportedEncoding, 实际 %v", err)
	}
	if _, err := Decode([]uint16{1, 2, 3, 4}, "string8", points.OrderABCD); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("字符串类型走 Decode 应报 ErrUnsupportedEncoding, 实际 %v", err)
	}
}

func TestDecodeString(t *testing.T) {
	// "EMS" + NUL 填充
	words := []uint16{0x454D, 0x5300, 0x0000, 0x0000}
	got, err := DecodeString(words, "string8")
	if err != nil {
		t.Fatal(err)
	}
	if got != "EMS" {
		t.Fatalf("期望 EMS, 实际 %q", got)
	}
}
