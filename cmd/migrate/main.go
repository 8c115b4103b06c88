package main

import (
	"encoding/json"
	"flag"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joripage/exchange-core/config"
	"github.com/joripage/exchange-core/pkg/infra"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	var source string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.StringVar(&source, "source", "file://migration/sql", "Migration source URL")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	if cfg.CoreDB == nil || cfg.CoreDB.MigrationConnURL == "" {
		zap.S().Fatal("core_db.migration_conn_url is required")
	}

	configBytes, err := json.MarshalIndent(cfg.CoreDB, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	mgTool := infra.GetMigrateTool()
	if err := mgTool.Migrate(source, cfg.CoreDB.MigrationConnURL); err != nil {
		zap.S().Fatalf("migrate failed: %v", err)
	}
}
