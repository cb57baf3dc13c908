package config

import (
	"fmt"
	"time"
)

// Config is the decoded form of config.yaml plus CB_* environment overrides.
type Config struct {
	Database   Database   `mapstructure:"database"`
	Attendance Attendance `mapstructure:"attendance"`
	Statistics Statistics `mapstructure:"statistics"`
	Poll       Poll       `mapstructure:"poll"`
	Cleanup    Cleanup    `mapstructure:"cleanup"`
	Log        Log        `mapstructure:"log"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

type Database struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// Attendance controls session logging. RetentionPeriod is in days.
type Attendance struct {
	Enabled         bool `mapstructure:"enabled"`
	RetentionPeriod int  `mapstructure:"retention_period" validate:"min=0"`
}

// Category is one statistics series. RetentionPeriod is in days; zero keeps
// rows forever.
type Category struct {
	Enabled         bool `mapstructure:"enabled"`
	RetentionPeriod int  `mapstructure:"retention_period" validate:"min=0"`
}

type Statistics struct {
	Servers  Category `mapstructure:"servers"`
	Meetings Category `mapstructure:"meetings"`
}

type Poll struct {
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Concurrency int           `mapstructure:"concurrency" validate:"min=1"`
	Schedule    string        `mapstructure:"schedule" validate:"required"`
}

type Cleanup struct {
	Schedule string `mapstructure:"schedule" validate:"required"`
}

type Log struct {
	Dir   string `mapstructure:"dir"`
	Tee   bool   `mapstructure:"tee"`
	Debug bool   `mapstructure:"debug"`
}

type Metrics struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
}
