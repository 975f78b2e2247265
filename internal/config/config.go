package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Redis    RedisConfig     `yaml:"redis"`
	Log      LogConfig       `yaml:"log"`
	Monitor  MonitorConfig   `yaml:"monitor"`
	Channels []ChannelConfig `yaml:"channels"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// ChannelConfig 一条通道的连接参数与点表路径
type ChannelConfig struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // modbus_tcp / modbus_rtu / virtual

	// TCP 连接参数
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// 串口连接参数
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`

	Timeout          time.Duration `yaml:"timeout"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	FailureThreshold int           `yaml:"failure_threshold"` // 连续连接级故障多少次后重连

	Retry RetryConfig `yaml:"retry"`

	PointTable   string `yaml:"point_table"`   // 点位定义表 CSV
	MappingTable string `yaml:"mapping_table"` // 协议映射表 CSV
}

// RetryConfig 重连退避策略
type RetryConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"` // 0~1，在退避值上附加的随机比例
}

// LoadConfig 加载配置文件
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	cfg := &Config{
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPort: 9090,
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Timeout == 0 {
			ch.Timeout = 3 * time.Second
		}
		if ch.PollInterval == 0 {
			ch.PollInterval = time.Second
		}
		if ch.FailureThreshold == 0 {
			ch.FailureThreshold = 3
		}
		if ch.Retry.InitialDelay == 0 {
			ch.Retry.InitialDelay = time.Second
		}
		if ch.Retry.MaxDelay == 0 {
			ch.Retry.MaxDelay = time.Minute
		}
		if ch.Retry.Multiplier == 0 {
			ch.Retry.Multiplier = 2.0
		}
	}
}

// Validate 校验全局配置。点表内容的校验在通道装载时进行，
// 单通道点表非法只影响该通道。
func (c *Config) Validate() error {
	seen := make(map[int]bool)
	for _, ch := range c.Channels {
		if ch.ID <= 0 {
			return fmt.Errorf("通道号必须为正整数: %d", ch.ID)
		}
		if seen[ch.ID] {
			return fmt.Errorf("通道号重复: %d", ch.ID)
		}
		seen[ch.ID] = true
		switch ch.Protocol {
		case "modbus_tcp":
			if ch.Host == "" || ch.Port == 0 {
				return fmt.Errorf("通道 %d: modbus_tcp 需要 host 与 port", ch.ID)
			}
		case "modbus_rtu":
			if ch.Device == "" {
				return fmt.Errorf("通道 %d: modbus_rtu 需要 device", ch.ID)
			}
		case "virtual":
		default:
			return fmt.Errorf("通道 %d: 未知规约 %q", ch.ID, ch.Protocol)
		}
		if ch.PointTable == "" || ch.MappingTable == "" {
			return fmt.Errorf("通道 %d: 缺少点表路径", ch.ID)
		}
	}
	return nil
}
