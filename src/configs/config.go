package configs

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shongo-go/connector/src/types"
)

// RPC 状态服务配置
type RPC struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Bind   string `yaml:"bind" json:"bind"`
}

var defaultRPC = RPC{
	Enable: true,
	Bind:   ":8090",
}

func (r *RPC) verify() error {
	if r == nil {
		return nil
	}
	if !r.Enable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", r.Bind); err != nil {
		return fmt.Errorf("无效的RPC绑定地址: %w", err)
	}
	return nil
}

type Log struct {
	Folder string `yaml:"folder" json:"folder"`
	// Daily 按天写入 <folder>/shongo-connector-YYYY-MM-DD.log
	Daily bool `yaml:"daily" json:"daily"`
	// RetentionDays 按天日志保留的天数，<=0 不清理
	RetentionDays int  `yaml:"retention_days" json:"retention_days"`
	PerRun        bool `yaml:"per_run" json:"per_run"`
	// PerConnector 每个连接器的日志另写一份到 <folder>/connectors/<name>.log
	PerConnector bool `yaml:"per_connector" json:"per_connector"`
}

type Sentry struct {
	DSN         string `yaml:"dsn" json:"-"`
	Environment string `yaml:"environment" json:"environment"`
}

// 通知服务所需配置
type Notify struct {
	Email Email `yaml:"email" json:"email"`
}

type Email struct {
	Enable         bool   `yaml:"enable" json:"enable"`
	SMTPHost       string `yaml:"smtpHost" json:"smtpHost"`
	SMTPPort       int    `yaml:"smtpPort" json:"smtpPort"`
	SenderEmail    string `yaml:"senderEmail" json:"senderEmail"`
	SenderPassword string `yaml:"senderPassword" json:"-"`
	// AdminEmails 接收 RESOURCE_ADMINS 通知的地址
	AdminEmails []string `yaml:"adminEmails" json:"adminEmails"`
}

func (e *Email) verify() error {
	if !e.Enable {
		return nil
	}
	if e.SMTPHost == "" || e.SMTPPort <= 0 {
		return fmt.Errorf("邮件通知已启用但未配置SMTP服务器")
	}
	if e.SenderEmail == "" {
		return fmt.Errorf("邮件通知已启用但未配置发送者邮箱")
	}
	return nil
}

// Storage 本地录制存储
type Storage struct {
	Root         string `yaml:"root" json:"root"`
	MinFreeSpace string `yaml:"min_free_space" json:"min_free_space"`
}

// Manager 连接器生命周期配置
type Manager struct {
	ConnectRetryPeriod time.Duration `yaml:"connect_retry_period" json:"connect_retry_period"`
	CheckPeriod        time.Duration `yaml:"check_period" json:"check_period"`
}

var defaultManager = Manager{
	ConnectRetryPeriod: 30 * time.Second,
	CheckPeriod:        60 * time.Second,
}

// User 本地控制器使用的静态用户目录
type User struct {
	ID             string   `yaml:"id" json:"id"`
	FullName       string   `yaml:"full_name" json:"full_name"`
	Email          string   `yaml:"email" json:"email"`
	PrincipalNames []string `yaml:"principal_names" json:"principal_names"`
	// Rooms 该用户拥有的会议室 ID，用于 ROOM_OWNERS 通知
	Rooms []string `yaml:"rooms" json:"rooms"`
}

// Address 设备地址
type Address struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	SSL  bool   `yaml:"ssl" json:"ssl"`
}

// DeviceAddress 转换为连接器使用的地址
func (a Address) DeviceAddress() types.DeviceAddress {
	return types.DeviceAddress{Host: a.Host, Port: a.Port, SSL: a.SSL}
}

// Connector 一个受管设备
type Connector struct {
	Name     string  `yaml:"name" json:"name"`
	Agent    string  `yaml:"agent" json:"agent"`
	Disabled bool    `yaml:"disabled" json:"disabled"`
	Address  Address `yaml:"address" json:"address"`
	Username string  `yaml:"username" json:"username"`
	Password string  `yaml:"password" json:"-"`
	Options  Options `yaml:"options" json:"options,omitempty"`
}

func (c *Connector) verify() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("连接器名称不能为空")
	}
	if c.Agent == "" {
		return fmt.Errorf("连接器 %s 未指定 agent", c.Name)
	}
	if c.Address.Host == "" {
		return fmt.Errorf("连接器 %s 未指定设备地址", c.Name)
	}
	if c.Address.Port < 0 || c.Address.Port > 65535 {
		return fmt.Errorf("连接器 %s 的端口 %d 无效", c.Name, c.Address.Port)
	}
	return nil
}

type Config struct {
	File    string `yaml:"-" json:"-"`
	Debug   bool   `yaml:"debug" json:"debug"`
	Version int64  `yaml:"-" json:"-"`

	RPC         RPC         `yaml:"rpc" json:"rpc"`
	Log         Log         `yaml:"log" json:"log"`
	Sentry      Sentry      `yaml:"sentry" json:"sentry"`
	Notify      Notify      `yaml:"notify" json:"notify"`
	AppDataPath string      `yaml:"app_data_path" json:"app_data_path"`
	Storage     Storage     `yaml:"storage" json:"storage"`
	Manager     Manager     `yaml:"manager" json:"manager"`
	Users       []User      `yaml:"users" json:"users"`
	Connectors  []Connector `yaml:"connectors" json:"connectors"`
}

// 使用 atomic.Value 存放当前配置指针，避免并发读写造成 data race
var config atomic.Value // stores *Config

var currentDebug atomic.Bool

var updateMu sync.Mutex

func SetCurrentConfig(cfg *Config) {
	if cfg == nil {
		config.Store((*Config)(nil))
		currentDebug.Store(false)
		return
	}
	config.Store(cfg)
	currentDebug.Store(cfg.Debug)
}

func GetCurrentConfig() *Config {
	v := config.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// IsDebug 提供并发安全、低开销的 Debug 值读取
func IsDebug() bool {
	return currentDebug.Load()
}

// SetDebug 以“复制-更新-原子替换”的方式切换 Debug，不写回文件
func SetDebug(v bool) *Config {
	updateMu.Lock()
	defer updateMu.Unlock()
	var next Config
	if cur := GetCurrentConfig(); cur != nil {
		next = *cur
	} else {
		next = *NewConfig()
	}
	next.Debug = v
	next.Version++
	SetCurrentConfig(&next)
	return &next
}

var defaultConfig = Config{
	RPC:   defaultRPC,
	Debug: false,
	Log: Log{
		Folder:        "./",
		Daily:         true,
		RetentionDays: 7,
	},
	Notify: Notify{
		Email: Email{
			Enable:   false,
			SMTPPort: 465,
		},
	},
	Storage: Storage{
		MinFreeSpace: "1GiB",
	},
	Manager: defaultManager,
}

func NewConfig() *Config {
	config := defaultConfig
	newConfigPostProcess(&config)
	return &config
}

func newConfigPostProcess(c *Config) {
	if c.AppDataPath == "" {
		c.AppDataPath = filepath.Join(c.Log.Folder, ".appdata")
	}
	if c.Manager.ConnectRetryPeriod <= 0 {
		c.Manager.ConnectRetryPeriod = defaultManager.ConnectRetryPeriod
	}
	if c.Manager.CheckPeriod <= 0 {
		c.Manager.CheckPeriod = defaultManager.CheckPeriod
	}
}

// Verify will return an error when this config has problem.
func (c *Config) Verify() error {
	if c == nil {
		return fmt.Errorf("配置不存在")
	}
	if err := c.RPC.verify(); err != nil {
		return err
	}
	if err := c.Notify.Email.verify(); err != nil {
		return err
	}
	if c.Storage.Root != "" {
		if _, err := os.Stat(c.Storage.Root); err != nil {
			return fmt.Errorf(`存储路径 "%s" 不存在`, c.Storage.Root)
		}
	}
	if _, err := ParseBytes(c.Storage.MinFreeSpace); err != nil {
		return fmt.Errorf("无效的最小剩余空间: %w", err)
	}
	names := make(map[string]struct{}, len(c.Connectors))
	for i := range c.Connectors {
		conn := &c.Connectors[i]
		if err := conn.verify(); err != nil {
			return err
		}
		if _, ok := names[conn.Name]; ok {
			return fmt.Errorf("连接器名称 %s 重复", conn.Name)
		}
		names[conn.Name] = struct{}{}
	}
	if !c.RPC.Enable && len(c.Connectors) == 0 {
		return fmt.Errorf("RPC 服务已禁用且未配置连接器，程序无任务可执行")
	}
	return nil
}

// GetConnector 按名称查找连接器配置
func (c *Config) GetConnector(name string) (*Connector, error) {
	for i := range c.Connectors {
		if c.Connectors[i].Name == name {
			return &c.Connectors[i], nil
		}
	}
	return nil, errors.New("connector " + name + " doesn't exist")
}

// GetUser 按 ID 查找用户
func (c *Config) GetUser(id string) (*User, bool) {
	for i := range c.Users {
		if c.Users[i].ID == id {
			return &c.Users[i], true
		}
	}
	return nil, false
}

// MinFreeSpaceBytes 返回全局最小剩余空间
func (c *Config) MinFreeSpaceBytes() int64 {
	n, err := ParseBytes(c.Storage.MinFreeSpace)
	if err != nil {
		return 0
	}
	return n
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv 只替换 ${VAR} 形式，避免破坏正则表达式中的 $
func expandEnv(b []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(b, func(m []byte) []byte {
		name := envPlaceholder.FindSubmatch(m)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return m
	})
}

// LoadEnvFile 加载 .env 文件，已存在的环境变量不会被覆盖
func LoadEnvFile(file string) error {
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", file, err)
	}
	return nil
}

func NewConfigWithBytes(b []byte) (*Config, error) {
	config := defaultConfig
	if err := yaml.Unmarshal(expandEnv(b), &config); err != nil {
		return nil, err
	}
	newConfigPostProcess(&config)
	return &config, nil
}

func NewConfigWithFile(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("can`t open file: %s: %w", file, err)
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}
