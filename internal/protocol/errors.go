package protocol

import (
	"errors"
	"fmt"
	"net"
)

// ErrKind 协议错误分类
type ErrKind int

const (
	KindTimeout       ErrKind = iota + 1 // 超时，连接级
	KindRefused                          // 连接被拒绝
	KindInvalidParams                    // 连接参数非法
	KindDisconnected                     // 链路断开，连接级
	KindDevice                           // 设备异常应答，点级
	KindRejected                         // 写请求被设备拒绝，点级
)

func (k ErrKind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindRefused:
		return "Refused"
	case KindInvalidParams:
		return "InvalidParams"
	case KindDisconnected:
		return "Disconnected"
	case KindDevice:
		return "DeviceError"
	case KindRejected:
		return "Rejected"
	default:
		return fmt.Sprintf("ErrKind(%d)", int(k))
	}
}

// ConnectError 建立连接失败
type ConnectError struct {
	Kind ErrKind
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("连接失败(%s): %v", e.Kind, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// ReadError 采集失败
type ReadError struct {
	Kind ErrKind
	Code uint8 // Kind 为 DeviceError 时的异常码
	Err  error
}

func (e *ReadError) Error() string {
	if e.Kind == KindDevice {
		return fmt.Sprintf("读取失败(%s): 异常码 0x%02X", e.Kind, e.Code)
	}
	return fmt.Sprintf("读取失败(%s): %v", e.Kind, e.Err)
}
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError 下发失败
type WriteError struct {
	Kind ErrKind
	Code uint8 // Kind 为 Rejected 时的异常码
	Err  error
}

func (e *WriteError) Error() string {
	if e.Kind == KindRejected {
		return fmt.Sprintf("写入失败(%s): 异常码 0x%02X", e.Kind, e.Code)
	}
	return fmt.Sprintf("写入失败(%s): %v", e.Kind, e.Err)
}
func (e *WriteError) Unwrap() error { return e.Err }

// IsConnectionError 判断错误是否为连接级故障。
// 连接级故障驱动通道监护进入断开/重连，点级故障仅跳过当前点。
func IsConnectionError(err error) bool {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind == KindTimeout || re.Kind == KindDisconnected
	}
	var we *WriteError
	if errors.As(err, &we) {
		return we.Kind == KindTimeout || we.Kind == KindDisconnected
	}
	return false
}

// classify 将链路层错误归类为超时或断开
func classify(err error) ErrKind {
	if isTimeout(err) {
		return KindTimeout
	}
	return KindDisconnected
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	type timeout interface{ Timeout() bool }
	var te timeout
	return errors.As(err, &te) && te.Timeout()
}
