package points

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// 点表文件为 CSV 格式，首行为表头：
//
//	点位定义表: point_id,category,name,scale,offset,unit,reverse,data_type
//	协议映射表: point_id,category,address,function_code,slave_id,byte_order,bit_position

// LoadTable 从点位定义表与协议映射表装载通道点表
func LoadTable(channelID int, pointPath, mappingPath string) (*Table, error) {
	pts, err := loadPoints(pointPath)
	if err != nil {
		return nil, fmt.Errorf("装载点位定义表 %s 失败: %w", pointPath, err)
	}
	maps, err := loadMappings(mappingPath)
	if err != nil {
		return nil, fmt.Errorf("装载协议映射表 %s 失败: %w", mappingPath, err)
	}
	return NewTable(channelID, pts, maps)
}

func loadPoints(path string) ([]Point, error) {
	rows, err := readCSV(path, 8)
	if err != nil {
		return nil, err
	}
	var pts []Point
	for i, row := range rows {
		p := Point{Scale: 1.0}
		if p.ID, err = strconv.Atoi(row[0]); err != nil {
			return nil, fmt.Errorf("第 %d 行: 点号 %q 非法", i+2, row[0])
		}
		if p.Category, err = ParseCategory(row[1]); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+2, err)
		}
		p.Name = strings.TrimSpace(row[2])
		if row[3] != "" {
			if p.Scale, err = strconv.ParseFloat(row[3], 64); err != nil {
				return nil, fmt.Errorf("第 %d 行: 系数 %q 非法", i+2, row[3])
			}
		}
		if row[4] != "" {
			if p.Offset, err = strconv.ParseFloat(row[4], 64); err != nil {
				return nil, fmt.Errorf("第 %d 行: 基值 %q 非法", i+2, row[4])
			}
		}
		p.Unit = strings.TrimSpace(row[5])
		if row[6] != "" {
			if p.Reverse, err = strconv.ParseBool(row[6]); err != nil {
				return nil, fmt.Errorf("第 %d 行: 取反标志 %q 非法", i+2, row[6])
			}
		}
		if p.DataType, err = ParseDataType(row[7]); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+2, err)
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func loadMappings(path string) ([]Mapping, error) {
	rows, err := readCSV(path, 7)
	if err != nil {
		return nil, err
	}
	var maps []Mapping
	for i, row := range rows {
		var m Mapping
		if m.PointID, err = strconv.Atoi(row[0]); err != nil {
			return nil, fmt.Errorf("第 %d 行: 点号 %q 非法", i+2, row[0])
		}
		if m.Category, err = ParseCategory(row[1]); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+2, err)
		}
		addr, err := strconv.ParseUint(row[2], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: 寄存器地址 %q 非法", i+2, row[2])
		}
		m.Address = uint16(addr)
		fc, err := strconv.ParseUint(row[3], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: 功能码 %q 非法", i+2, row[3])
		}
		m.FuncCode = uint8(fc)
		slave, err := strconv.ParseUint(row[4], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: 从站地址 %q 非法", i+2, row[4])
		}
		m.SlaveID = uint8(slave)
		if m.ByteOrder, err = ParseByteOrder(row[5]); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", i+2, err)
		}
		if row[6] != "" {
			bit, err := strconv.ParseUint(row[6], 10, 8)
			if err != nil || bit > 15 {
				return nil, fmt.Errorf("第 %d 行: 位偏移 %q 非法", i+2, row[6])
			}
			m.BitPos = uint8(bit)
		}
		maps = append(maps, m)
	}
	return maps, nil
}

func readCSV(path string, fields int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	r.TrimLeadingSpace = true

	// 跳过表头
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("文件为空")
		}
		return nil, err
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
