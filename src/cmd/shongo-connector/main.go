package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shongo-go/connector/src/cmd/shongo-connector/internal/flag"
	"github.com/shongo-go/connector/src/configs"
	_ "github.com/shongo-go/connector/src/connector/all"
	"github.com/shongo-go/connector/src/consts"
	"github.com/shongo-go/connector/src/controller"
	"github.com/shongo-go/connector/src/instance"
	"github.com/shongo-go/connector/src/log"
	"github.com/shongo-go/connector/src/manager"
	"github.com/shongo-go/connector/src/metrics"
	"github.com/shongo-go/connector/src/notify"
	"github.com/shongo-go/connector/src/pkg/sentry"
	"github.com/shongo-go/connector/src/recordingstore"
	"github.com/shongo-go/connector/src/servers"
)

func getConfig() (*configs.Config, error) {
	if err := configs.LoadEnvFile(*flag.EnvFile); err != nil {
		return nil, err
	}
	var config *configs.Config
	if *flag.Conf != "" {
		c, err := configs.NewConfigWithFile(*flag.Conf)
		if err != nil {
			return nil, err
		}
		config = c
		flag.Apply(config)
	} else {
		config = flag.GenConfigFromFlags()
	}
	return config, config.Verify()
}

func main() {
	// 程序退出时刷新 Sentry 事件队列
	defer sentry.Flush(2 * time.Second)
	defer sentry.Recover()

	flag.Parse()
	config, err := getConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	configs.SetCurrentConfig(config)

	// DSN 来源优先级：配置文件 > 环境变量 SENTRY_DSN
	dsn := config.Sentry.DSN
	if dsn == "" {
		dsn = os.Getenv("SENTRY_DSN")
	}
	environment := config.Sentry.Environment
	if config.Debug {
		environment = "development"
	}
	hostname, _ := os.Hostname()
	if err := sentry.Init(dsn, environment, consts.AppVersion, hostname); err != nil {
		fmt.Fprintf(os.Stderr, "警告: Sentry 初始化失败: %v\n", err)
	}

	inst := new(instance.Instance)
	inst.Metrics = metrics.New()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	ctx := context.WithValue(rootCtx, instance.Key, inst)

	logger := log.New(ctx)
	logger.Infof("%s Version: %s Link Start", consts.AppName, consts.AppVersion)
	if config.File != "" {
		logger.Debugf("config path: %s.", config.File)
	} else {
		logger.Debugf("config file is not used, no connectors will be started.")
	}
	logger.Debugf("%+v", consts.GetAppInfo())

	store, err := recordingstore.Open(filepath.Join(config.AppDataPath, "db", "recordings.db"))
	if err != nil {
		logger.WithError(err).Fatal("failed to open recording store")
	}
	defer store.Close()

	ctrl := controller.New(config, store, notify.New(config.Notify.Email, logger), logger)
	inst.Controller = ctrl

	m, err := manager.NewManager(ctx, config, ctrl.For)
	if err != nil {
		logger.WithError(err).Fatal("failed to create connectors")
	}

	if config.RPC.Enable {
		if err = servers.NewServer(ctx).Start(ctx); err != nil {
			logger.WithError(err).Fatalf("failed to init server")
		}
	}
	if err = m.Start(ctx); err != nil {
		logger.WithError(err).Fatalf("failed to start connectors")
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sentry.Go(func() {
		<-c
		logger.Info("shutting down")
		rootCancel()
		shutdownCtx := context.WithValue(context.Background(), instance.Key, inst)
		if inst.Server != nil {
			inst.Server.Close(shutdownCtx)
		}
		inst.ConnectorManager.Close(shutdownCtx)
	})

	inst.WaitGroup.Wait()
	logger.Info("Bye~")
}
