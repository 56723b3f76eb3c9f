// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Rule struct {
	Name string   `yaml:"name" json:"name"`
	Any  []string `yaml:"any" json:"any"`
}

type Config struct {
	App struct {
		DataDir  string `yaml:"data_dir" json:"data_dir"`
		HTTPAddr string `yaml:"http_addr" json:"http_addr"`
		LogLevel string `yaml:"log_level" json:"log_level"`
	} `yaml:"app" json:"app"`

	Schedule struct {
		Times          []string `yaml:"times" json:"times"`
		Timezone       string   `yaml:"timezone" json:"timezone"`
		CatchupMinutes int      `yaml:"catchup_minutes" json:"catchup_minutes"`
	} `yaml:"schedule" json:"schedule"`

	Mailbox struct {
		Folder       string `yaml:"folder" json:"folder"`
		LookbackDays int    `yaml:"lookback_days" json:"lookback_days"`
		MaxMessages  int    `yaml:"max_messages" json:"max_messages"`
		MarkSeen     bool   `yaml:"mark_seen" json:"mark_seen"`
	} `yaml:"mailbox" json:"mailbox"`

	Rules struct {
		Tier1 []Rule `yaml:"tier1" json:"tier1"`
		Tier2 []Rule `yaml:"tier2" json:"tier2"`
	} `yaml:"rules" json:"rules"`

	Scrape struct {
		Enabled        bool `yaml:"enabled" json:"enabled"`
		TimeoutSeconds int  `yaml:"timeout_seconds" json:"timeout_seconds"`
		DelaySeconds   int  `yaml:"delay_seconds" json:"delay_seconds"`
	} `yaml:"scrape" json:"scrape"`

	Mail struct {
		SMTPHost      string `yaml:"smtp_host" json:"smtp_host"`
		SMTPPort      int    `yaml:"smtp_port" json:"smtp_port"`
		SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`
	} `yaml:"mail" json:"mail"`

	Workbook struct {
		Filename string `yaml:"filename" json:"filename"`
	} `yaml:"workbook" json:"workbook"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}

// Location resolves the configured schedule zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Schedule.Timezone)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ParseClock parses "HH:MM" wall-clock strings from schedule.times.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad clock %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad clock %q: hour out of range", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad clock %q: minute out of range", s)
	}
	return hour, minute, nil
}
