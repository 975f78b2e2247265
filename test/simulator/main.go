// Modbus TCP 从站模拟器：监听端口并应答读写请求，
// 联调网关时代替真实设备。
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net"
	"sync"
)

type registerBank struct {
	mu    sync.Mutex
	regs  map[uint16]uint16
	coils map[uint16]bool
}

func main() {
	listen := flag.String("listen", ":5020", "监听地址")
	seed := flag.Int("seed", 2300, "0号寄存器初值")
	flag.Parse()

	bank := &registerBank{
		regs:  make(map[uint16]uint16),
		coils: make(map[uint16]bool),
	}
	bank.regs[0] = uint16(*seed)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Fatalf("监听失败: %v", err)
	}
	fmt.Printf("模拟器启动: %s\n", *listen)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("接受连接错误: %v", err)
			continue
		}
		go serve(conn, bank)
	}
}

func serve(conn net.Conn, bank *registerBank) {
	defer conn.Close()
	fmt.Printf("新连接: %s\n", conn.RemoteAddr())

	head := make([]byte, 7)
	for {
		if _, err := readFull(conn, head); err != nil {
			return
		}
		plen := int(binary.BigEndian.Uint16(head[4:])) - 1
		if plen <= 0 || plen > 253 {
			return
		}
		pdu := make([]byte, plen)
		if _, err := readFull(conn, pdu); err != nil {
			return
		}

		resp := bank.handle(pdu)
		adu := make([]byte, 7+len(resp))
		copy(adu, head[:4])
		binary.BigEndian.PutUint16(adu[4:], uint16(len(resp)+1))
		adu[6] = head[6]
		copy(adu[7:], resp)
		if _, err := conn.Write(adu); err != nil {
			return
		}
	}
}

func (b *registerBank) handle(pdu []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	fc := pdu[0]
	switch fc {
	case 0x03, 0x04: // 读寄存器
		addr := binary.BigEndian.Uint16(pdu[1:])
		count := binary.BigEndian.Uint16(pdu[3:])
		resp := make([]byte, 2+count*2)
		resp[0] = fc
		resp[1] = byte(count * 2)
		for i := uint16(0); i < count; i++ {
			binary.BigEndian.PutUint16(resp[2+i*2:], b.regs[addr+i])
		}
		return resp
	case 0x06: // 写单寄存器
		addr := binary.BigEndian.Uint16(pdu[1:])
		b.regs[addr] = binary.BigEndian.Uint16(pdu[3:])
		return append([]byte{}, pdu[:5]...)
	case 0x05: // 写单线圈
		addr := binary.BigEndian.Uint16(pdu[1:])
		b.coils[addr] = binary.BigEndian.Uint16(pdu[3:]) == 0xFF00
		return append([]byte{}, pdu[:5]...)
	case 0x01, 0x02: // 读线圈/离散输入
		addr := binary.BigEndian.Uint16(pdu[1:])
		count := binary.BigEndian.Uint16(pdu[3:])
		byteCount := (count + 7) / 8
		resp := make([]byte, 2+byteCount)
		resp[0] = fc
		resp[1] = byte(byteCount)
		for i := uint16(0); i < count; i++ {
			if b.coils[addr+i] {
				resp[2+i/8] |= 1 << (i % 8)
			}
		}
		return resp
	case 0x10: // 写多寄存器
		addr := binary.BigEndian.Uint16(pdu[1:])
		count := binary.BigEndian.Uint16(pdu[3:])
		for i := uint16(0); i < count; i++ {
			b.regs[addr+i] = binary.BigEndian.Uint16(pdu[6+i*2:])
		}
		resp := make([]byte, 5)
		resp[0] = fc
		binary.BigEndian.PutUint16(resp[1:], addr)
		binary.BigEndian.PutUint16(resp[3:], count)
		return resp
	default: // 非法功能码
		return []byte{fc | 0x80, 0x01}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			return read, err
		}
		read += n
	}
	return read, nil
}
