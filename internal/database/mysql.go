package database

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(gormmysql.Open(dsn), gormConfig(cfg))
}

// buildMySQLDSN renders the connection through the driver's own formatter. parseTime and
// loc are typed driver settings; every other option is passed through as a parameter.
func buildMySQLDSN(cfg Config) (string, error) {
	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return "", fmt.Errorf("mysql: invalid dsn: %w", err)
		}
		return dsn, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	for key, value := range cfg.Options {
		switch key {
		case "parseTime":
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				return "", fmt.Errorf("mysql: option parseTime: %w", err)
			}
			mc.ParseTime = parsed
		case "loc":
			loc, err := time.LoadLocation(value)
			if err != nil {
				return "", fmt.Errorf("mysql: option loc: %w", err)
			}
			mc.Loc = loc
		default:
			mc.Params[key] = value
		}
	}

	return mc.FormatDSN(), nil
}
