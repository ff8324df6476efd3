package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// 为空时输出到标准错误
	LogFile   string `mapstructure:"log_file"`
	StaticDir string `mapstructure:"static_dir"`

	// 客户端连接的大厅服务地址
	ServerURL string `mapstructure:"server_url"`
	RoomID    string `mapstructure:"room_id"`

	AssetURL          string        `mapstructure:"asset_url"`
	AssetTimeout      time.Duration `mapstructure:"asset_timeout"`
	StageRadius       float64       `mapstructure:"stage_radius"`
	TickRate          int           `mapstructure:"tick_rate"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxPlayers        int           `mapstructure:"max_players"`
}

var cfg *AppConfig

func GetConfig() *AppConfig {
	if cfg == nil {
		cfg = InitConfig("")
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("static_dir", "./static")
	v.SetDefault("server_url", "ws://127.0.0.1:8080/api/v1/ws/join")
	v.SetDefault("room_id", "lobby")
	v.SetDefault("asset_url", "http://127.0.0.1:8080/assets/models/character.glb")
	v.SetDefault("asset_timeout", 5*time.Second)
	v.SetDefault("stage_radius", 2.4)
	v.SetDefault("tick_rate", 30)
	v.SetDefault("reconnect_interval", 2*time.Second)
	v.SetDefault("max_players", 16)
}

// InitConfig 读取配置文件与环境变量；path 为空时在当前目录查找 app_config.json，找不到则使用默认值
func InitConfig(path string) *AppConfig {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func Load(path string) (*AppConfig, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PODIUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("app_config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("加载配置失败: %w", err)
		}
	}

	var config AppConfig

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	return &config, nil
}
