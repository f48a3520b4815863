// build 构建工具：go run ./src/cmd/build release
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/alecthomas/kingpin"
	log "github.com/sirupsen/logrus"
)

var customVersion string

func main() {
	app := kingpin.New("Build tool", "shongo-connector Build tool.")

	devCmd := app.Command("dev", "Build for development.")
	devCmd.Flag("version", "自定义版本号").StringVar(&customVersion)
	devCmd.Action(devBuild)

	app.Command("release", "Build for release.").Action(releaseBuild)
	app.Command("test", "Run tests.").Action(goTest)
	app.Command("generate", "go generate ./...").Action(goGenerate)
	app.Command("clean", "清理构建产物").Action(cleanBuild)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

func devBuild(c *kingpin.ParseContext) error {
	if customVersion != "" {
		os.Setenv("APP_VERSION", customVersion)
	}
	return buildBinary(true)
}

func releaseBuild(c *kingpin.ParseContext) error {
	return buildBinary(false)
}

func goTest(c *kingpin.ParseContext) error {
	return execCommand("go", "test", "-race", "--cover", "-coverprofile=coverage.txt", "./src/...")
}

func goGenerate(c *kingpin.ParseContext) error {
	return execCommand("go", "generate", "./...")
}

func cleanBuild(c *kingpin.ParseContext) error {
	if err := os.RemoveAll("bin"); err != nil {
		return fmt.Errorf("删除 bin 失败: %w", err)
	}
	_ = os.Remove(filepath.Join(".", "coverage.txt"))
	fmt.Println("清理完成")
	return nil
}

func execCommand(args ...string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Print(cmd.String())
	return cmd.Run()
}
