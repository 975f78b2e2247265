// Package transport 提供字节级链路抽象，协议插件通过它收发报文。
// TCP、串口与内存实现共用同一接口，便于测试替换。
package transport

import "context"

// Transport 字节级链路。单连接上的收发不保证并发安全，
// 调用方（通道监护）负责串行化。
type Transport interface {
	// Open 建立链路，已建立时幂等
	Open(ctx context.Context) error
	// Close 释放链路资源，尽力而为
	Close() error
	// Send 发送一帧完整报文
	Send(ctx context.Context, data []byte) error
	// Receive 在超时内读取一次响应，返回读到的字节数
	Receive(ctx context.Context, buf []byte) (int, error)
}
