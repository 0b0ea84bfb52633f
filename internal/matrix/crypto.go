// ABOUTME: End-to-end encryption setup for the bot's Matrix device
// ABOUTME: SQLite-backed crypto store with device mismatch recovery and recovery-key verification

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// Crypto owns the encryption helper attached to a client.
type Crypto struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// EnableCrypto attaches E2EE to a logged-in client. The crypto database lives
// in dataDir, one file per account. A recovery key, when given, is used to
// cross-sign the device; failure to verify is logged and not fatal.
func EnableCrypto(ctx context.Context, client *mautrix.Client, recoveryKey, dataDir string, logger *slog.Logger) (*Crypto, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "matrix-crypto")

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	userID := client.UserID.String()
	dbPath := filepath.Join(dataDir, "replybot-crypto-"+accountSlug(userID)+".db")
	logger.Info("setting up encryption", "db", dbPath)

	stale, err := storedDeviceDiffers(dbPath, client.DeviceID.String())
	if err != nil {
		logger.Debug("could not read stored device id", "error", err)
	}
	if stale {
		logger.Warn("crypto store belongs to another device, resetting it")
		for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("removing stale crypto store: %w", err)
			}
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, pickleKey(userID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	c := &Crypto{helper: helper, logger: logger}
	if recoveryKey == "" {
		logger.Info("encryption enabled without cross-signing")
		return c, nil
	}
	if err := c.verify(ctx, recoveryKey); err != nil {
		logger.Warn("recovery key verification failed, continuing unverified", "error", err)
	} else {
		logger.Info("device verified with recovery key")
	}
	return c, nil
}

func (c *Crypto) verify(ctx context.Context, recoveryKey string) error {
	machine := c.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	return machine.VerifyWithRecoveryKey(ctx, recoveryKey)
}

// Close releases the crypto store.
func (c *Crypto) Close() error {
	if c == nil || c.helper == nil {
		return nil
	}
	return c.helper.Close()
}

// accountSlug turns a user id into a file-name-safe string:
// @replybot:example.org becomes replybot_example.org.
func accountSlug(userID string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(userID, "@") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ':':
			b.WriteByte('_')
		}
	}
	return b.String()
}

// pickleKey derives the per-account key that encrypts the crypto store.
func pickleKey(userID string) []byte {
	sum := sha256.Sum256([]byte("coven-replybot-crypto:" + userID))
	return sum[:]
}

// storedDeviceDiffers reports whether an existing crypto store at dbPath was
// created for a device other than deviceID.
func storedDeviceDiffers(dbPath, deviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var stored string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored != deviceID, nil
}
