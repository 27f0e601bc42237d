package db

import (
	"time"

	"github.com/smallbiznis/orgaccess/internal/config"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	Logger          gormlogger.Interface
}

// ConfigFrom extracts the direct-database settings of the postgres backend.
func ConfigFrom(cfg config.DatastoreConfig) Config {
	return Config{
		Type:            "postgres",
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		SSLMode:         cfg.DBSSLMode,
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
	}
}
