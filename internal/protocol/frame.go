package protocol

import (
	"encoding/binary"
	"fmt"
)

// Modbus 功能码
const (
	FuncReadCoils     = 0x01
	FuncReadDiscretes = 0x02
	FuncReadHolding   = 0x03
	FuncReadInput     = 0x04
	FuncWriteCoil     = 0x05
	FuncWriteReg      = 0x06
	FuncWriteRegs     = 0x10

	excFlag = 0x80
)

// Modbus 异常码
const (
	ExcIllegalFunc  = 0x01
	ExcIllegalAddr  = 0x02
	ExcIllegalValue = 0x03
	ExcServerFail   = 0x04
)

// isBitFunc 位采集功能码（线圈/离散输入）
func isBitFunc(fc uint8) bool {
	return fc == FuncReadCoils || fc == FuncReadDiscretes
}

// crc16 CRC-16/MODBUS 校验
func crc16(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// buildReadPDU 读请求 PDU: 功能码 + 起始地址 + 数量
func buildReadPDU(fc uint8, addr, count uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = fc
	binary.BigEndian.PutUint16(pdu[1:], addr)
	binary.BigEndian.PutUint16(pdu[3:], count)
	return pdu
}

// buildWriteRegPDU 写单寄存器 PDU (0x06)
func buildWriteRegPDU(addr, value uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = FuncWriteReg
	binary.BigEndian.PutUint16(pdu[1:], addr)
	binary.BigEndian.PutUint16(pdu[3:], value)
	return pdu
}

// buildWriteCoilPDU 写单线圈 PDU (0x05)，ON 为 0xFF00
func buildWriteCoilPDU(addr uint16, on bool) []byte {
	pdu := make([]byte, 5)
	pdu[0] = FuncWriteCoil
	binary.BigEndian.PutUint16(pdu[1:], addr)
	if on {
		binary.BigEndian.PutUint16(pdu[3:], 0xFF00)
	}
	return pdu
}

// buildWriteRegsPDU 写多寄存器 PDU (0x10)
func buildWriteRegsPDU(addr uint16, values []uint16) []byte {
	pdu := make([]byte, 6+len(values)*2)
	pdu[0] = FuncWriteRegs
	binary.BigEndian.PutUint16(pdu[1:], addr)
	binary.BigEndian.PutUint16(pdu[3:], uint16(len(values)))
	pdu[5] = byte(len(values) * 2)
	for i, v := range values {
		binary.BigEndian.PutUint16(pdu[6+i*2:], v)
	}
	return pdu
}

// checkException 检查应答 PDU 是否为异常帧，是则返回异常码
func checkException(pdu []byte) (uint8, bool) {
	if len(pdu) >= 2 && pdu[0]&excFlag != 0 {
		return pdu[1], true
	}
	return 0, false
}

// parseRegsResponse 解析读寄存器应答，返回寄存器值序列
func parseRegsResponse(pdu []byte, count uint16) ([]uint16, error) {
	if len(pdu) < 2 {
		return nil, fmt.Errorf("应答过短: %d 字节", len(pdu))
	}
	byteCount := int(pdu[1])
	if byteCount != int(count)*2 || len(pdu) < 2+byteCount {
		return nil, fmt.Errorf("应答长度不符: 期望 %d 字节数据, 实际 %d", count*2, byteCount)
	}
	words := make([]uint16, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(pdu[2+i*2:])
	}
	return words, nil
}

// parseBitsResponse 解析读线圈/离散输入应答，按位展开
func parseBitsResponse(pdu []byte, count uint16) ([]bool, error) {
	if len(pdu) < 2 {
		return nil, fmt.Errorf("应答过短: %d 字节", len(pdu))
	}
	byteCount := int(pdu[1])
	need := (int(count) + 7) / 8
	if byteCount < need || len(pdu) < 2+byteCount {
		return nil, fmt.Errorf("应答长度不符: 期望 %d 字节位图, 实际 %d", need, byteCount)
	}
	bits := make([]bool, count)
	for i := range bits {
		bits[i] = pdu[2+i/8]>>(i%8)&1 == 1
	}
	return bits, nil
}
