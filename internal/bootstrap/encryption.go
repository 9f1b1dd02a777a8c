package bootstrap

import (
	"errors"
	"log/slog"

	"github.com/leadwatch/leadwatch/internal/data/cryptoutil"
)

// ErrEncryptionKeyRequired is returned outside dev mode when no token encryption key is configured.
var ErrEncryptionKeyRequired = errors.New("SECRETS_ENCRYPTION_KEY is required outside dev mode")

// CreateEncryptor creates the AES-GCM encryptor used for stored OAuth tokens.
// In dev mode an empty or unusable key degrades to a noop encryptor with a warning;
// otherwise it is an error, so tokens are never written in plaintext by accident.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, isDev bool, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		if !isDev {
			return nil, ErrEncryptionKeyRequired
		}
		logger.Warn("encryption key is empty, storing credentials unencrypted (dev mode)")
		return &cryptoutil.NoopEncryptor{}, nil
	}

	enc, err := cryptoutil.NewAESGCMEncryptor(cryptoutil.DeriveKey(key))
	if err != nil {
		if !isDev {
			return nil, err
		}
		logger.Warn("failed to create encryptor, using noop encryptor (dev mode)", "error", err)
		return &cryptoutil.NoopEncryptor{}, nil
	}
	return enc, nil
}
