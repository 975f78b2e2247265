package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EvanL1/VoltageEMS-sub005/internal/config"
	"github.com/EvanL1/VoltageEMS-sub005/internal/points"
	"github.com/EvanL1/VoltageEMS-sub005/internal/protocol"
	"github.com/EvanL1/VoltageEMS-sub005/internal/store"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testChannelConfig() config.ChannelConfig {
	return config.ChannelConfig{
		ID:               1001,
		Protocol:         "virtual",
		Timeout:          100 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		FailureThreshold: 2,
		Retry: config.RetryConfig{
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

// testTable 一个遥测点(系数0.1) + 一个取反遥信点 + 一个遥调点 + 一个遥控点
func testTable(t *testing.T) *points.Table {
	t.Helper()
	tbl, err := points.NewTable(1001,
		[]points.Point{
			{ID: 1, Category: points.Telemetry, Name: "A相电压", Scale: 0.1, DataType: points.TypeUint16},
			{ID: 2, Category: points.Signal, Name: "告警状态", Scale: 1, Reverse: true, DataType: points.TypeBool},
			{ID: 7, Category: points.Adjustment, Name: "功率设定", Scale: 0.1, DataType: points.TypeUint16},
			{ID: 3, Category: points.Control, Name: "远程启停", Scale: 1, DataType: points.TypeBool},
		},
		[]points.Mapping{
			{PointID: 1, Category: points.Telemetry, Address: 0, FuncCode: 3, SlaveID: 1, ByteOrder: points.OrderABCD},
			{PointID: 2, Category: points.Signal, Address: 100, FuncCode: 3, SlaveID: 1, ByteOrder: points.OrderABCD, BitPos: 0},
			{PointID: 7, Category: points.Adjustment, Address: 300, FuncCode: 6, SlaveID: 1, ByteOrder: points.OrderABCD},
			{PointID: 3, Category: points.Control, Address: 200, FuncCode: 5, SlaveID: 1, ByteOrder: points.OrderABCD},
		})
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

// stateRecorder 记录状态迁移序列
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

// waitFor 轮询等待条件成立
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("等待条件超时")
}

// 连接失败时按退避重试：连接中 -> 已断开 反复迁移
func TestSupervisorReconnectBackoff(t *testing.T) {
	v := protocol.NewVirtual()
	v.FailConnect(errors.New("设备离线"))
	rt := store.NewMemStore()

	sup := NewSupervisor(testChannelConfig(), v, testTable(t), rt, testLogger())
	rec := &stateRecorder{}
	sup.OnStateChange = rec.record

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return len(rec.snapshot()) >= 5 })
	cancel()
	<-done

	states := rec.snapshot()
	want := []State{StateConnecting, StateDisconnected, StateConnecting, StateDisconnected, StateConnecting}
	for i, w := range want {
		if states[i] != w {
			t.Fatalf("状态序列第 %d 步期望 %s, 实际 %s (全序列 %v)", i, w, states[i], states)
		}
	}
	if last := states[len(states)-1]; last != StateStopped {
		t.Fatalf("停机后应为 Stopped, 实际 %s", last)
	}

	// 失败计入统计并回写实时库
	st, ok := rt.ChannelStatus(1001)
	if !ok || st.TotalErrors == 0 {
		t.Fatalf("连接失败应计入统计: %+v", st)
	}
}

// 正常采集：原始值经系数换算后发布，取反遥信取反
func TestSupervisorPollPublish(t *testing.T) {
	v := protocol.NewVirtual()
	v.SetRegister(0, 2300)
	v.SetRegister(100, 1)
	rt := store.NewMemStore()

	sup := NewSupervisor(testChannelConfig(), v, testTable(t), rt, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Value(1001, points.Telemetry, 1)
		return ok
	})

	if v, _ := rt.Value(1001, points.Telemetry, 1); v != "230.000000" {
		t.Fatalf("遥测期望 230.000000, 实际 %q", v)
	}
	// 线上位 1, 取反后为 0
	if v, _ := rt.Value(1001, points.Signal, 2); v != "0" {
		t.Fatalf("取反遥信期望 0, 实际 %q", v)
	}
	if _, ok := rt.Timestamp(1001, points.Telemetry, 1); !ok {
		t.Fatal("时标应已写入")
	}
	if sup.State() != StatePolling {
		t.Fatalf("采集中应为 Polling, 实际 %s", sup.State())
	}

	cancel()
	<-done
	if sup.State() != StateStopped {
		t.Fatalf("停机后应为 Stopped, 实际 %s", sup.State())
	}
}

// 点级故障只跳过当前点，保留上一值
func TestSupervisorDeviceErrorKeepsLastValue(t *testing.T) {
	v := protocol.NewVirtual()
	v.SetRegister(0, 1000)
	rt := store.NewMemStore()

	sup := NewSupervisor(testChannelConfig(), v, testTable(t), rt, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Value(1001, points.Telemetry, 1)
		return ok
	})
	if v, _ := rt.Value(1001, points.Telemetry, 1); v != "100.000000" {
		t.Fatalf("期望 100.000000, 实际 %q", v)
	}

	// 点位变坏后继续采集若干轮，值保持不变
	v.FailAddress(0, 0x02)
	time.Sleep(30 * time.Millisecond)
	if got, _ := rt.Value(1001, points.Telemetry, 1); got != "100.000000" {
		t.Fatalf("坏点应保留上一值, 实际 %q", got)
	}
	if sup.State() != StatePolling {
		t.Fatalf("点级故障不应离开 Polling, 实际 %s", sup.State())
	}

	cancel()
	<-done
}

// 热加载：轮次间隙整表替换，不断开连接
func TestSupervisorHotReload(t *testing.T) {
	v := protocol.NewVirtual()
	v.SetRegister(0, 2300)
	v.SetRegister(10, 42)
	rt := store.NewMemStore()

	sup := NewSupervisor(testChannelConfig(), v, testTable(t), rt, testLogger())
	rec := &stateRecorder{}
	sup.OnStateChange = rec.record

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Value(1001, points.Telemetry, 1)
		return ok
	})

	// 新点表只含一个新遥测点
	tbl2, err := points.NewTable(1001,
		[]points.Point{{ID: 5, Category: points.Telemetry, Name: "频率", Scale: 1, DataType: points.TypeUint16}},
		[]points.Mapping{{PointID: 5, Category: points.Telemetry, Address: 10, FuncCode: 3, SlaveID: 1, ByteOrder: points.OrderABCD}})
	if err != nil {
		t.Fatal(err)
	}
	sup.Swap(tbl2)

	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Value(1001, points.Telemetry, 5)
		return ok
	})
	if got, _ := rt.Value(1001, points.Telemetry, 5); got != "42.000000" {
		t.Fatalf("新点表值期望 42.000000, 实际 %q", got)
	}
	if sup.Table().Get(points.Telemetry, 1) != nil {
		t.Fatal("旧点表应已整表替换")
	}

	// 迁移序列应包含 Reloading, 且未经过 Disconnected
	sawReloading := false
	for _, st := range rec.snapshot() {
		switch st {
		case StateReloading:
			sawReloading = true
		case StateDisconnected:
			t.Fatal("热加载不应断开连接")
		}
	}
	if !sawReloading {
		t.Fatal("迁移序列应包含 Reloading")
	}

	cancel()
	<-done
}

// Swap 连续调用只保留最新点表
func TestSupervisorSwapKeepsLatest(t *testing.T) {
	v := protocol.NewVirtual()
	rt := store.NewMemStore()
	sup := NewSupervisor(testChannelConfig(), v, testTable(t), rt, testLogger())

	mk := func(id int) *points.Table {
		tbl, err := points.NewTable(1001,
			[]points.Point{{ID: id, Category: points.Telemetry, Name: "p", Scale: 1, DataType: points.TypeUint16}},
			[]points.Mapping{{PointID: id, Category: points.Telemetry, Address: 0, FuncCode: 3, SlaveID: 1, ByteOrder: points.OrderABCD}})
		if err != nil {
			t.Fatal(err)
		}
		return tbl
	}
	sup.Swap(mk(1))
	sup.Swap(mk(2))
	sup.Swap(mk(3))

	got := <-sup.reload
	if got.Get(points.Telemetry, 3) == nil {
		t.Fatal("应保留最新的点表")
	}
	select {
	case <-sup.reload:
		t.Fatal("旧点表请求应被丢弃")
	default:
	}
}

// flakyPlugin 前 N 次采集返回连接级故障
type flakyPlugin struct {
	*protocol.VirtualPlugin
	mu        sync.Mutex
	failReads int
}

func (f *flakyPlugin) ReadBatch(ctx context.Context, ms []points.Mapping) (map[int][]uint16, map[int]error, error) {
	f.mu.Lock()
	if f.failReads > 0 {
		f.failReads--
		f.mu.Unlock()
		return nil, nil, &protocol.ReadError{Kind: protocol.KindDisconnected, Err: errors.New("链路中断")}
	}
	f.mu.Unlock()
	return f.VirtualPlugin.ReadBatch(ctx, ms)
}

// 连续连接级故障达到阈值后断开重连，恢复后继续采集
func TestSupervisorLinkFailureRecovery(t *testing.T) {
	v := protocol.NewVirtual()
	v.SetRegister(0, 2300)
	flaky := &flakyPlugin{VirtualPlugin: v, failReads: 2} // 阈值恰为 2

	rt := store.NewMemStore()
	sup := NewSupervisor(testChannelConfig(), flaky, testTable(t), rt, testLogger())
	rec := &stateRecorder{}
	sup.OnStateChange = rec.record

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool {
		_, ok := rt.Value(1001, points.Telemetry, 1)
		return ok
	})

	// 应经历 断开 -> 重连 -> 采集恢复
	var sawDisconnected, reconnected bool
	for _, st := range rec.snapshot() {
		if st == StateDisconnected {
			sawDisconnected = true
		}
		if sawDisconnected && st == StateConnecting {
			reconnected = true
		}
	}
	if !sawDisconnected || !reconnected {
		t.Fatalf("应断开后重连, 实际序列 %v", rec.snapshot())
	}

	cancel()
	<-done
}
