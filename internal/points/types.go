package points

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Category 点位类别（四遥）
type Category uint8

const (
	Telemetry  Category = iota + 1 // 遥测：模拟量采集
	Signal                         // 遥信：状态量采集
	Control                        // 遥控：开关量下发
	Adjustment                     // 遥调：模拟量下发
)

var categoryNames = map[Category]string{
	Telemetry:  "YC",
	Signal:     "YX",
	Control:    "YK",
	Adjustment: "YT",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Readable 是否为采集类别（遥测/遥信）
func (c Category) Readable() bool {
	return c == Telemetry || c == Signal
}

// Writable 是否为下发类别（遥控/遥调）
func (c Category) Writable() bool {
	return c == Control || c == Adjustment
}

// Analog 是否为模拟量（需要系数/基值换算）
func (c Category) Analog() bool {
	return c == Telemetry || c == Adjustment
}

// ParseCategory 解析类别标识，兼容中英文缩写
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YC", "TELEMETRY", "T":
		return Telemetry, nil
	case "YX", "SIGNAL", "S":
		return Signal, nil
	case "YK", "CONTROL", "C":
		return Control, nil
	case "YT", "ADJUSTMENT", "A":
		return Adjustment, nil
	default:
		return 0, fmt.Errorf("未知的点位类别: %q", s)
	}
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	cat, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = cat
	return nil
}

// DataType 点位数据类型
type DataType string

const (
	TypeBool    DataType = "bool"
	TypeInt16   DataType = "int16"
	TypeUint16  DataType = "uint16"
	TypeInt32   DataType = "int32"
	TypeUint32  DataType = "uint32"
	TypeFloat32 DataType = "float32"
	TypeInt64   DataType = "int64"
	TypeUint64  DataType = "uint64"
	TypeFloat64 DataType = "float64"
	// 字符串类型写作 string8/string16 等，数字为字节长度
	typeStringPrefix = "string"
)

// ParseDataType 解析数据类型标识
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch DataType(s) {
	case TypeBool, TypeInt16, TypeUint16, TypeInt32, TypeUint32,
		TypeFloat32, TypeInt64, TypeUint64, TypeFloat64:
		return DataType(s), nil
	}
	if n, ok := stringLen(DataType(s)); ok && n > 0 && n%2 == 0 {
		return DataType(s), nil
	}
	return "", fmt.Errorf("未知的数据类型: %q", s)
}

func stringLen(dt DataType) (int, bool) {
	if !strings.HasPrefix(string(dt), typeStringPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(dt), typeStringPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsString 是否为字符串类型
func (dt DataType) IsString() bool {
	_, ok := stringLen(dt)
	return ok
}

// Words 数据类型占用的寄存器数量（每寄存器 16 位）
func (dt DataType) Words() int {
	switch dt {
	case TypeBool, TypeInt16, TypeUint16:
		return 1
	case TypeInt32, TypeUint32, TypeFloat32:
		return 2
	case TypeInt64, TypeUint64, TypeFloat64:
		return 4
	}
	if n, ok := stringLen(dt); ok {
		return n / 2
	}
	return 0
}

// ByteOrder 多寄存器数值的字节重组顺序
type ByteOrder string

const (
	OrderABCD ByteOrder = "ABCD" // 高字在前，高字节在前（网络序）
	OrderDCBA ByteOrder = "DCBA" // 全部反序
	OrderBADC ByteOrder = "BADC" // 字内字节交换
	OrderCDAB ByteOrder = "CDAB" // 字交换
)

// ParseByteOrder 解析字节序标识，空值取默认 ABCD
func ParseByteOrder(s string) (ByteOrder, error) {
	switch ByteOrder(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return OrderABCD, nil
	case OrderABCD:
		return OrderABCD, nil
	case OrderDCBA:
		return OrderDCBA, nil
	case OrderBADC:
		return OrderBADC, nil
	case OrderCDAB:
		return OrderCDAB, nil
	default:
		return "", fmt.Errorf("未知的字节序: %q", s)
	}
}

// Point 点位定义
type Point struct {
	ID       int      `json:"id"`
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Scale    float64  `json:"scale"`   // 系数，默认 1.0
	Offset   float64  `json:"offset"`  // 基值，默认 0.0
	Unit     string   `json:"unit"`    // 工程单位，可为空
	Reverse  bool     `json:"reverse"` // 遥信/遥控取反
	DataType DataType `json:"data_type"`
}

// Mapping 点位的协议侧描述
type Mapping struct {
	PointID   int       `json:"point_id"`
	Category  Category  `json:"category"`
	Address   uint16    `json:"address"`
	FuncCode  uint8     `json:"function_code"`
	SlaveID   uint8     `json:"slave_id"`
	ByteOrder ByteOrder `json:"byte_order"`
	BitPos    uint8     `json:"bit_position"` // 0~15，位压缩遥信/遥控使用
	Quantity  uint16    `json:"quantity"`     // 寄存器数量，装载时按数据类型推导
}
