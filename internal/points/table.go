package points

import (
	"fmt"
	"sort"
)

// Entry 点位定义与协议映射的联接结果
type Entry struct {
	Point   Point
	Mapping Mapping
}

// Table 单通道的点表快照。装载完成后不可变，热加载整表替换。
type Table struct {
	ChannelID int
	byCat     map[Category]map[int]*Entry
	readOrder []*Entry // 遥测+遥信，按 (从站, 功能码, 地址) 排序的采集顺序
}

// NewTable 联接点位定义与协议映射并校验约束
func NewTable(channelID int, pts []Point, maps []Mapping) (*Table, error) {
	t := &Table{
		ChannelID: channelID,
		byCat:     make(map[Category]map[int]*Entry),
	}

	seen := make(map[Category]map[int]bool)
	for _, p := range pts {
		if p.ID <= 0 {
			return nil, fmt.Errorf("通道 %d: 点号必须为正整数, 点位 %q 点号为 %d", channelID, p.Name, p.ID)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("通道 %d: 点位 %d 名称为空", channelID, p.ID)
		}
		if p.DataType.Words() == 0 {
			return nil, fmt.Errorf("通道 %d: 点位 %d 数据类型 %q 非法", channelID, p.ID, p.DataType)
		}
		if seen[p.Category] == nil {
			seen[p.Category] = make(map[int]bool)
		}
		if seen[p.Category][p.ID] {
			return nil, fmt.Errorf("通道 %d: 类别 %s 下点号 %d 重复", channelID, p.Category, p.ID)
		}
		seen[p.Category][p.ID] = true

		if t.byCat[p.Category] == nil {
			t.byCat[p.Category] = make(map[int]*Entry)
		}
		t.byCat[p.Category][p.ID] = &Entry{Point: p}
	}

	mapped := make(map[Category]map[int]bool)
	for _, m := range maps {
		e := t.lookup(m.Category, m.PointID)
		if e == nil {
			return nil, fmt.Errorf("通道 %d: 映射引用了不存在的点位 %s/%d", channelID, m.Category, m.PointID)
		}
		if mapped[m.Category] == nil {
			mapped[m.Category] = make(map[int]bool)
		}
		if mapped[m.Category][m.PointID] {
			return nil, fmt.Errorf("通道 %d: 点位 %s/%d 存在多条映射", channelID, m.Category, m.PointID)
		}
		mapped[m.Category][m.PointID] = true
		if m.BitPos > 15 {
			return nil, fmt.Errorf("通道 %d: 点位 %s/%d 位偏移 %d 超出 0~15", channelID, m.Category, m.PointID, m.BitPos)
		}
		m.Quantity = uint16(e.Point.DataType.Words())
		e.Mapping = m
	}

	// 每个点位必须有且仅有一条映射：遥测/遥信用于采集，遥控/遥调用于下发
	for cat, entries := range t.byCat {
		for id := range entries {
			if !mapped[cat][id] {
				return nil, fmt.Errorf("通道 %d: 点位 %s/%d 缺少协议映射", channelID, cat, id)
			}
		}
	}

	for _, cat := range []Category{Telemetry, Signal} {
		for _, e := range t.byCat[cat] {
			t.readOrder = append(t.readOrder, e)
		}
	}
	sortEntries(t.readOrder)

	return t, nil
}

func (t *Table) lookup(cat Category, id int) *Entry {
	if m, ok := t.byCat[cat]; ok {
		return m[id]
	}
	return nil
}

// Get 按类别与点号取点位，不存在时返回 nil
func (t *Table) Get(cat Category, id int) *Entry {
	return t.lookup(cat, id)
}

// ReadEntries 采集点（遥测+遥信）的稳定顺序视图
func (t *Table) ReadEntries() []*Entry {
	return t.readOrder
}

// Count 某类别下的点位数量
func (t *Table) Count(cat Category) int {
	return len(t.byCat[cat])
}

func sortEntries(es []*Entry) {
	// 按从站、功能码、地址排序，保证批量采集可以合并相邻寄存器
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i].Mapping, es[j].Mapping
		if a.SlaveID != b.SlaveID {
			return a.SlaveID < b.SlaveID
		}
		if a.FuncCode != b.FuncCode {
			return a.FuncCode < b.FuncCode
		}
		return a.Address < b.Address
	})
}
