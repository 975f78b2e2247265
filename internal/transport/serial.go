package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// ErrNotOpen 链路尚未建立
var ErrNotOpen = errors.New("链路未打开")

// SerialConfig 串口参数
type SerialConfig struct {
	Device   string // 设备节点，如 /dev/ttyUSB0
	BaudRate int
	DataBits int
	Parity   string // none/even/odd
	StopBits int
	Timeout  time.Duration
}

// SerialTransport RS-485/RS-232 串口链路
type SerialTransport struct {
	cfg  SerialConfig
	port serial.Port
}

func NewSerial(cfg SerialConfig) *SerialTransport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = 8
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	return &SerialTransport{cfg: cfg}
}

func (s *SerialTransport) Open(ctx context.Context) error {
	if s.port != nil {
		return nil
	}
	mode := &serial.Mode{
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		Parity:   parity(s.cfg.Parity),
		StopBits: stopBits(s.cfg.StopBits),
	}
	port, err := serial.Open(s.cfg.Device, mode)
	if err != nil {
		return fmt.Errorf("打开串口 %s 失败: %w", s.cfg.Device, err)
	}
	port.SetReadTimeout(s.cfg.Timeout)
	s.port = port
	return nil
}

func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SerialTransport) Send(ctx context.Context, data []byte) error {
	if s.port == nil {
		return ErrNotOpen
	}
	_, err := s.port.Write(data)
	return err
}

func (s *SerialTransport) Receive(ctx context.Context, buf []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotOpen
	}
	n, err := s.port.Read(buf)
	if err != nil {
		return n, err
	}
	if n == 0 {
		// go.bug.st/serial 读超时返回 (0, nil)，统一转为超时错误
		return 0, ErrReadTimeout
	}
	return n, nil
}

// ErrReadTimeout 串口读超时，实现 net.Error 风格的 Timeout() 判定
var ErrReadTimeout error = &timeoutError{"读超时"}

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string { return e.msg }
func (e *timeoutError) Timeout() bool { return true }

func parity(s string) serial.Parity {
	switch s {
	case "even":
		return serial.EvenParity
	case "odd":
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

func stopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
