package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Task describes one scheduled ingestion job. Durations are kept as strings
// here; the scheduler parses and validates them when the task is registered.
type Task struct {
	Name      string   `yaml:"name" json:"name"`
	Kind      string   `yaml:"kind" json:"kind"` // market_data, backtest or prune
	Cron      string   `yaml:"cron" json:"cron"` // Six-field cron spec or @every shorthand
	Symbols   []string `yaml:"symbols,omitempty" json:"symbols,omitempty"`
	Timeframe string   `yaml:"timeframe,omitempty" json:"timeframe,omitempty"`
	Lookback  string   `yaml:"lookback,omitempty" json:"lookback,omitempty"` // Window behind now per run, e.g. "24h"
	MaxAge    string   `yaml:"max_age,omitempty" json:"max_age,omitempty"`   // Prune cutoff, e.g. "720h"
}

// TasksFile is the on-disk layout of the scheduled task definitions.
type TasksFile struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTasks reads task definitions from a YAML file.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var file TasksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	return file.Tasks, nil
}
