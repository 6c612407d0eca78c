// @title Proofly 信任与验证引擎 API
// @version 1.0
// @description Proofly技能验证平台的信任与验证引擎服务。

// @contact.name API支持
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"log"

	"proofly_backend/internal/app"
	"proofly_backend/internal/config"
	"proofly_backend/pkg/configwatcher"
	"proofly_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 配置热加载:公平阈值、信任因子权重等可在线调整
	go configwatcher.WatchConfig("configs", application.ApplyConfig)

	application.Run()
}
