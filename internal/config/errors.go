package config

import "errors"

var ErrConfigIsNil = errors.New("config is nil")
var ErrMissingDocumentID = errors.New("missing document id")
var ErrMissingSnapshotPath = errors.New("missing snapshot path")
var ErrMissingJournalPath = errors.New("missing journal path")
var ErrNegativeDuration = errors.New("negative duration")
var ErrInvalidSalt = errors.New("invalid encryption salt")
var ErrMissingPassphrase = errors.New("missing encryption passphrase")
