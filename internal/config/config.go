package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `toml:"server"`
	Data      DataConfig      `toml:"data"`
	Directory DirectoryConfig `toml:"directory"`
	Save      SaveRetryConfig `toml:"save"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir  string `toml:"data_dir"`
	FileName string `toml:"file_name"`
	// Variant: legacy / v2 / auto
	Variant    string `toml:"variant"`
	PersistIDs bool   `toml:"persist_ids"`
	// Watch 监听表格文件的外部修改
	Watch bool `toml:"watch"`
}

// DirectoryConfig 目录服务配置；Token 通常来自环境变量或 .env
type DirectoryConfig struct {
	BaseURL    string `toml:"base_url"`
	Token      string `toml:"token"`
	PageSize   int    `toml:"page_size"`
	MaxRetries int    `toml:"max_retries"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// SaveRetryConfig 写回重试配置
type SaveRetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMs int `toml:"base_delay_ms"`
	MaxDelayMs  int `toml:"max_delay_ms"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	PortSpecified bool
	EnvFiles      []string
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20262,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir:  "data",
			FileName: "services.xlsx",
			Variant:  "auto",
			Watch:    true,
		},
		Directory: DirectoryConfig{
			BaseURL:    "https://api.pagerduty.com",
			PageSize:   100,
			MaxRetries: 3,
			TimeoutSec: 20,
		},
		Save: SaveRetryConfig{
			MaxAttempts: 3,
			BaseDelayMs: 100,
			MaxDelayMs:  2000,
		},
	}
}

// BaseDelay 写回重试初始间隔
func (c SaveRetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay 写回重试最大间隔
func (c SaveRetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// Timeout 目录请求超时
func (c DirectoryConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置并返回元信息
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return LoadFrom(exeDir)
}

// LoadFrom 从 dir 下的 config.toml 与 .env 加载配置
//
// 优先级：环境变量 > config.toml > 默认值。.env 不覆盖已存在的环境变量。
func LoadFrom(dir string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{}
	config := DefaultConfig()

	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err == nil {
			info.EnvFiles = append(info.EnvFiles, path)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, err
		}
	case os.IsNotExist(err):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	applyEnv(config, &info)
	return config, info, nil
}

// applyEnv 环境变量覆盖（SVCLEDGER_*）
func applyEnv(config *AppConfig, info *LoadConfigInfo) {
	if v := os.Getenv("SVCLEDGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Server.Port = port
			info.PortSpecified = true
		}
	}
	if v := os.Getenv("SVCLEDGER_DATA_DIR"); v != "" {
		config.Data.DataDir = v
	}
	if v := os.Getenv("SVCLEDGER_FILE"); v != "" {
		config.Data.FileName = v
	}
	if v := os.Getenv("SVCLEDGER_VARIANT"); v != "" {
		config.Data.Variant = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SVCLEDGER_PERSIST_IDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Data.PersistIDs = b
		}
	}
	if v := os.Getenv("SVCLEDGER_DIRECTORY_URL"); v != "" {
		config.Directory.BaseURL = v
	}
	if v := os.Getenv("SVCLEDGER_DIRECTORY_TOKEN"); v != "" {
		config.Directory.Token = v
	}
}

// EnsureDataDir 确保数据目录存在；相对路径基于可执行文件目录
func EnsureDataDir(config *AppConfig) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		dataDir = filepath.Join(exeDir, dataDir)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}
