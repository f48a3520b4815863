// Package flag 命令行参数
package flag

import (
	"github.com/alecthomas/kingpin"

	"github.com/shongo-go/connector/src/configs"
	"github.com/shongo-go/connector/src/consts"
)

var (
	Conf    = kingpin.Flag("config", "Config file.").Short('c').Default("").String()
	EnvFile = kingpin.Flag("env-file", "Dotenv file loaded before the config, its variables can be referenced as ${NAME}.").Default("").String()
	Debug   = kingpin.Flag("debug", "Enable debug mode.").Default("false").Bool()
	RPCBind = kingpin.Flag("rpc-bind", "Status server bind address.").Default(":8090").String()
	AppData = kingpin.Flag("app-data", "Directory for the metadata databases.").Default("").String()
)

// Parse 解析 os.Args
func Parse() {
	kingpin.Version(consts.AppVersion)
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()
}

// GenConfigFromFlags 没有配置文件时只根据参数生成配置，不包含任何连接器
func GenConfigFromFlags() *configs.Config {
	config := configs.NewConfig()
	config.Debug = *Debug
	config.RPC = configs.RPC{
		Enable: true,
		Bind:   *RPCBind,
	}
	if *AppData != "" {
		config.AppDataPath = *AppData
	}
	return config
}

// Apply 命令行参数覆盖配置文件
func Apply(config *configs.Config) {
	if *Debug {
		config.Debug = true
	}
	if *AppData != "" {
		config.AppDataPath = *AppData
	}
}
