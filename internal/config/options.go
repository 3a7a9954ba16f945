package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/iudanet/crdtstore/internal/crdt"
	"github.com/iudanet/crdtstore/internal/crypto"
	"github.com/iudanet/crdtstore/internal/logging"
)

// Logger строит логгер по секции logging.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	return logging.New(w, c.Logging.Level, c.Logging.Format)
}

// StoreOptions переводит настройки в опции документа.
func (c *Config) StoreOptions(logger *slog.Logger) []crdt.Option {
	opts := []crdt.Option{
		crdt.WithCompactionHorizon(c.Compaction.Horizon),
		crdt.WithTombstoneRetention(c.Compaction.TombstoneRetention),
		crdt.WithCompactEvery(c.Compaction.Every),
		crdt.WithCollectOrphans(c.Compaction.CollectOrphans),
	}

	if c.Replica.ID != 0 {
		opts = append(opts, crdt.WithReplicaID(c.Replica.ID))
	}

	if logger != nil {
		opts = append(opts, crdt.WithLogger(logger))
	}

	return opts
}

func (c *EncryptionConfig) Enabled() bool {
	return c.PassphraseEnv != ""
}

// Key получает ключ шифрования из пароля в переменной окружения и соли.
func (c *EncryptionConfig) Key() ([]byte, error) {
	salt, err := crypto.DecodeSalt(c.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSalt, err)
	}

	passphrase := os.Getenv(c.PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%w: %s is not set", ErrMissingPassphrase, c.PassphraseEnv)
	}

	return crypto.DeriveKey(passphrase, salt)
}
