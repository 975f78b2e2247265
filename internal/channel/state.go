package channel

// State 通道监护状态机的状态
type State int32

const (
	StateDisconnected State = iota // 初始态，无链路会话
	StateConnecting                // 正在建立连接
	StateConnected                 // 已连接，随即进入采集
	StatePolling                   // 周期采集中
	StateReloading                 // 点表热加载中
	StateStopped                   // 终止态，仅显式停机进入
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StatePolling:
		return "Polling"
	case StateReloading:
		return "Reloading"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
