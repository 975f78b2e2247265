package protocol

import (
	"bytes"
	"testing"
)

// CRC-16/MODBUS 已知向量
func TestCRC16(t *testing.T) {
	cases := []struct {
		data []byte
		want uint16
	}{
		// 01 03 00 00 00 02 -> 线上字节 C4 0B（低字节在前）
		{[]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}, 0x0BC4},
		// 11 03 00 6B 00 03 -> 线上字节 76 87
		{[]byte{0x11, 0x03, 0x00, 0x6B, 0x00, 0x03}, 0x8776},
	}
	for _, c := range cases {
		if got := crc16(c.data); got != c.want {
			t.Errorf("crc16(% x) = 0x%04X, 期望 0x%04X", c.data, got, c.want)
		}
	}
}

func TestBuildReadPDU(t *testing.T) {
	got := buildReadPDU(FuncReadHolding, 0x0010, 4)
	want := []byte{0x03, 0x00, 0x10, 0x00, 0x04}
	if !bytes.Equal(got, want) {
		t.Fatalf("期望 % x, 实际 % x", want, got)
	}
}

func TestBuildWritePDUs(t *testing.T) {
	if got, want := buildWriteRegPDU(0x0100, 0x007B), []byte{0x06, 0x01, 0x00, 0x00, 0x7B}; !bytes.Equal(got, want) {
		t.Fatalf("写单寄存器: 期望 % x, 实际 % x", want, got)
	}
	if got, want := buildWriteCoilPDU(0x00C8, true), []byte{0x05, 0x00, 0xC8, 0xFF, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("写线圈 ON: 期望 % x, 实际 % x", want, got)
	}
	if got, want := buildWriteCoilPDU(0x00C8, false), []byte{0x05, 0x00, 0xC8, 0x00, 0x00}; !bytes.Equal(got, want) {
		t.Fatalf("写线圈 OFF: 期望 % x, 实际 % x", want, got)
	}
	if got, want := buildWriteRegsPDU(0x0200, []uint16{0x1234, 0x5678}),
		[]byte{0x10, 0x02, 0x00, 0x00, 0x02, 0x04, 0x12, 0x34, 0x56, 0x78}; !bytes.Equal(got, want) {
		t.Fatalf("写多寄存器: 期望 % x, 实际 % x", want, got)
	}
}

func TestCheckException(t *testing.T) {
	if code, ok := checkException([]byte{0x83, ExcIllegalAddr}); !ok || code != ExcIllegalAddr {
		t.Fatalf("应识别异常帧: ok=%v code=%d", ok, code)
	}
	if _, ok := checkException([]byte{0x03, 0x02, 0x00, 0x01}); ok {
		t.Fatal("正常帧不应判为异常")
	}
}

func TestParseRegsResponse(t *testing.T) {
	words, err := parseRegsResponse([]byte{0x03, 0x04, 0x08, 0xFC, 0x00, 0x01}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if words[0] != 0x08FC || words[1] != 0x0001 {
		t.Fatalf("解析错误: %v", words)
	}

	if _, err := parseRegsResponse([]byte{0x03, 0x04, 0x08, 0xFC}, 2); err == nil {
		t.Fatal("数据不足应报错")
	}
	if _, err := parseRegsResponse([]byte{0x03}, 1); err == nil {
		t.Fatal("应答过短应报错")
	}
}

func TestParseBitsResponse(t *testing.T) {
	// 位图 0b0000_0101: 第 0、2 位为 1
	bits, err := parseBitsResponse([]byte{0x01, 0x01, 0x05}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, true}
	for i := range want {
		if bits[i] != want[i] {
			t.Fatalf("第 %d 位期望 %v, 实际 %v", i, want[i], bits[i])
		}
	}

	if _, err := parseBitsResponse([]byte{0x01, 0x01, 0x05}, 100); err == nil {
		t.Fatal("位图不足应报错")
	}
}
