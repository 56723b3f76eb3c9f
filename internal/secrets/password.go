package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Keychain service name grouping all of the tracker's secrets.
	KeyringService = "jobtrack"
)

// ResolveMailPassword prefers the environment variable; the OS keyring is
// the fallback so the password never has to live in a shell profile.
func ResolveMailPassword(envPassword, keyringAccount string) (string, error) {
	if strings.TrimSpace(envPassword) != "" {
		return envPassword, nil
	}
	if strings.TrimSpace(keyringAccount) != "" {
		pw, err := keyring.Get(KeyringService, keyringAccount)
		if err == nil && strings.TrimSpace(pw) != "" {
			return pw, nil
		}
	}
	return "", errors.New("mail password not found (set EMAIL_PASSWORD or store it in the keychain)")
}

func SetMailPassword(keyringAccount string, password string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(password) == "" {
		return errors.New("password is empty")
	}
	return keyring.Set(KeyringService, keyringAccount, password)
}

func DeleteMailPassword(keyringAccount string) error {
	if strings.TrimSpace(keyringAccount) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, keyringAccount)
}

// MailKeyringAccount names the keychain entry for one mailbox identity.
func MailKeyringAccount(username, imapHost string) string {
	return fmt.Sprintf("jobtrack:imap:%s@%s", username, imapHost)
}
