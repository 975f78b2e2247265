// 点表生成工具：批量生成遥测点位定义表与协议映射表 CSV，
// 用于搭建测试环境。
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	count := flag.Int("count", 16, "生成遥测点数量")
	slave := flag.Int("slave", 1, "从站地址")
	start := flag.Int("start", 0, "起始寄存器地址")
	scale := flag.Float64("scale", 0.1, "系数")
	pointsOut := flag.String("points", "points.csv", "点位定义表输出路径")
	mappingsOut := flag.String("mappings", "mappings.csv", "协议映射表输出路径")
	flag.Parse()

	pf, err := os.Create(*pointsOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建点位定义表失败: %v\n", err)
		os.Exit(1)
	}
	defer pf.Close()

	mf, err := os.Create(*mappingsOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建协议映射表失败: %v\n", err)
		os.Exit(1)
	}
	defer mf.Close()

	fmt.Fprintln(pf, "point_id,category,name,scale,offset,unit,reverse,data_type")
	fmt.Fprintln(mf, "point_id,category,address,function_code,slave_id,byte_order,bit_position")

	for i := 1; i <= *count; i++ {
		fmt.Fprintf(pf, "%d,YC,测点%d,%g,0,,false,uint16\n", i, i, *scale)
		fmt.Fprintf(mf, "%d,YC,%d,3,%d,ABCD,0\n", i, *start+i-1, *slave)
	}

	fmt.Printf("已生成 %d 个遥测点: %s, %s\n", *count, *pointsOut, *mappingsOut)
}
