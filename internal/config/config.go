// Package config читает настройки реплики из YAML.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Replica    ReplicaConfig    `yaml:"replica"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Compaction CompactionConfig `yaml:"compaction"`
}

type ReplicaConfig struct {
	DocumentID string `yaml:"document_id"`
	// ID идентификатор реплики; 0 означает случайный
	ID uint32 `yaml:"id"`
}

type CompactionConfig struct {
	Horizon            time.Duration `yaml:"horizon"`
	TombstoneRetention time.Duration `yaml:"tombstone_retention"`
	// Every записей между автоматическими компактизациями; отрицательное значение отключает
	Every          int  `yaml:"every"`
	CollectOrphans bool `yaml:"collect_orphans"`
}

type StorageConfig struct {
	SnapshotPath string           `yaml:"snapshot_path"`
	JournalPath  string           `yaml:"journal_path"`
	Encryption   EncryptionConfig `yaml:"encryption"`
}

// EncryptionConfig включает шифрование снапшотов и журнала.
// Пароль читается из переменной окружения PassphraseEnv, сам пароль в файле не хранится.
type EncryptionConfig struct {
	PassphraseEnv string `yaml:"passphrase_env"`
	// Salt соль Argon2id в Base64
	Salt string `yaml:"salt"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Load читает файл, заполняет значения по умолчанию и проверяет результат.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	cfg.PopulateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
