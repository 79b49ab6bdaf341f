package config

import (
	"fmt"
)

type DatabaseConfig interface {
	GetConnectionString() string
	GetDriver() string
}

// PostgresConfig represents the configuration needed to connect to a PostgreSQL database
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Driver - "postgres" (lib/pq) или "pgx" (pgx/v5 stdlib).
	Driver       string `yaml:"driver"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

func (pc *PostgresConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

func (pc *PostgresConfig) GetDriver() string {
	return pc.Driver
}

func (pc *PostgresConfig) applyDefaults() {
	if pc.Host == "" {
		pc.Host = "localhost"
	}
	if pc.Port == "" {
		pc.Port = "5432"
	}
	if pc.User == "" {
		pc.User = "postgres"
	}
	if pc.DBName == "" {
		pc.DBName = "postgres"
	}
	if pc.SSLMode == "" {
		pc.SSLMode = "disable"
	}
	if pc.Driver == "" {
		pc.Driver = "postgres"
	}
	if pc.MaxOpenConns == 0 {
		pc.MaxOpenConns = 20
	}
}
