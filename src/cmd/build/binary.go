package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"
)

// buildFlags 构建所需的参数
type buildFlags struct {
	Tags    string
	GcFlags string
	LdFlags string
}

// constsPath 注入版本信息的包路径
const constsPath = "github.com/shongo-go/connector/src/consts"

var ldFlagsTmpl = template.Must(template.New("ldFlags").Parse(
	"-X {{.ConstsPath}}.BuildTime={{.Now}} " +
		"-X {{.ConstsPath}}.AppVersion={{.AppVersion}} " +
		"-X {{.ConstsPath}}.GitHash={{.GitHash}}"))

func getBuildFlags(isDev bool) buildFlags {
	// 版本号优先级：环境变量 APP_VERSION > git tag
	appVersion := os.Getenv("APP_VERSION")
	if appVersion == "" {
		appVersion = gitOutput("describe", "--tags", "--always")
	}
	var buf bytes.Buffer
	_ = ldFlagsTmpl.Execute(&buf, map[string]string{
		"ConstsPath": constsPath,
		"Now":        fmt.Sprintf("%d", time.Now().Unix()),
		"AppVersion": appVersion,
		"GitHash":    gitOutput("rev-parse", "HEAD"),
	})
	ldFlags := strings.TrimSpace(buf.String())

	if isDev {
		return buildFlags{
			Tags:    "dev",
			GcFlags: "all=-N -l", // 禁用优化以便调试
			LdFlags: ldFlags,
		}
	}
	return buildFlags{
		Tags:    "release",
		LdFlags: "-s -w " + ldFlags,
	}
}

// buildBinary 构建到 bin/shongo-connector-{平台}-{架构}
func buildBinary(isDev bool) error {
	goos := os.Getenv("PLATFORM")
	if goos == "" {
		goos = runtime.GOOS
	}
	goarch := os.Getenv("ARCH")
	if goarch == "" {
		goarch = runtime.GOARCH
	}
	output := "bin/shongo-connector-" + goos + "-" + goarch
	if goos == "windows" {
		output += ".exe"
	}
	flags := getBuildFlags(isDev)
	fmt.Printf("building shongo-connector (Platform: %s, Arch: %s, GoVersion: %s, Tags: %s)\n",
		goos, goarch, runtime.Version(), flags.Tags)

	if err := os.MkdirAll("bin", 0o755); err != nil {
		return err
	}
	cmd := exec.Command(
		"go", "build",
		"-tags", flags.Tags,
		"-gcflags="+flags.GcFlags,
		"-o", output,
		"-ldflags="+flags.LdFlags,
		"./src/cmd/shongo-connector",
	)
	cmd.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Print(cmd.String())
	return cmd.Run()
}

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
