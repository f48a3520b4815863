package consts

import (
	"os"
	"runtime"
)

const (
	AppName = "shongo-connector"
)

// 设备连接相关的默认值
const (
	DefaultRequestTimeoutSec         = 30
	DefaultConnectionStateTimeoutSec = 5
	DefaultRetryAttempts             = 5
	DefaultRecordingMoveWorkers      = 10
)

type Info struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	BuildTime  string `json:"build_time"`
	GitHash    string `json:"git_hash"`
	Pid        int    `json:"pid"`
	Platform   string `json:"platform"`
	GoVersion  string `json:"go_version"`
	Hostname   string `json:"hostname"`
}

var (
	BuildTime  string
	AppVersion string
	GitHash    string
)

// GetAppInfo 返回应用信息
// 必须使用函数，AppVersion 等字段通过 -ldflags 在链接阶段注入
func GetAppInfo() Info {
	hostname, _ := os.Hostname()
	return Info{
		AppName:    AppName,
		AppVersion: AppVersion,
		BuildTime:  BuildTime,
		GitHash:    GitHash,
		Pid:        os.Getpid(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion:  runtime.Version(),
		Hostname:   hostname,
	}
}
