package config

import (
	"fmt"
	"io"

	"github.com/iudanet/crdtstore/internal/crypto"
	"github.com/iudanet/crdtstore/internal/logging"
)

func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigIsNil
	}
	if err := c.Replica.Validate(); err != nil {
		return err
	}
	if err := c.Compaction.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

func (c *ReplicaConfig) Validate() error {
	if c.DocumentID == "" {
		return ErrMissingDocumentID
	}
	return nil
}

func (c *CompactionConfig) Validate() error {
	if c.Horizon < 0 || c.TombstoneRetention < 0 {
		return ErrNegativeDuration
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.SnapshotPath == "" {
		return ErrMissingSnapshotPath
	}

	if c.JournalPath == "" {
		return ErrMissingJournalPath
	}

	return c.Encryption.Validate()
}

func (c *EncryptionConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := crypto.DecodeSalt(c.Salt); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSalt, err)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	// Проверяем уровень и формат тем же кодом, что строит логгер
	_, err := logging.New(io.Discard, c.Level, c.Format)
	return err
}
