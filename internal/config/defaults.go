package config

import "github.com/iudanet/crdtstore/internal/crdt"

var defaultReplica = ReplicaConfig{
	DocumentID: "default",
}

var defaultCompaction = CompactionConfig{
	Every: crdt.DefaultCompactEvery,
}

var defaultStorage = StorageConfig{
	SnapshotPath: "crdtstore.db",
	JournalPath:  "crdtstore-journal.db",
}

var defaultLogging = LoggingConfig{
	Level:  "info",
	Format: "text",
}

func Default() *Config {
	return &Config{
		Replica:    defaultReplica,
		Compaction: defaultCompaction,
		Storage:    defaultStorage,
		Logging:    defaultLogging,
	}
}

func (c *ReplicaConfig) PopulateDefaults() {
	if c.DocumentID == "" {
		c.DocumentID = defaultReplica.DocumentID
	}
}

func (c *CompactionConfig) PopulateDefaults() {
	if c.Every == 0 {
		c.Every = defaultCompaction.Every
	}
}

func (c *StorageConfig) PopulateDefaults() {
	if c.SnapshotPath == "" {
		c.SnapshotPath = defaultStorage.SnapshotPath
	}

	if c.JournalPath == "" {
		c.JournalPath = defaultStorage.JournalPath
	}
}

func (c *LoggingConfig) PopulateDefaults() {
	if c.Level == "" {
		c.Level = defaultLogging.Level
	}

	if c.Format == "" {
		c.Format = defaultLogging.Format
	}
}

func (c *Config) PopulateDefaults() {
	c.Replica.PopulateDefaults()
	c.Compaction.PopulateDefaults()
	c.Storage.PopulateDefaults()
	c.Logging.PopulateDefaults()
}
