// Package token manages provider bearer tokens.
package token

import (
	"github.com/ocnaibill/crunchyroll-jellyfin/constant"
	"github.com/zalando/go-keyring"
)

const (
	keyringService      = constant.CrunchyMeta
	keyringRefreshUser  = "refresh-token"
	keyringPasswordUser = "password"
)

// SaveRefreshToken persists the refresh token to the system keyring so later
// runs can use the refresh grant instead of full credentials.
func SaveRefreshToken(refresh string) error {
	return keyring.Set(keyringService, keyringRefreshUser, refresh)
}

// LoadRefreshToken retrieves the persisted refresh token, or "" when absent.
func LoadRefreshToken() string {
	v, err := keyring.Get(keyringService, keyringRefreshUser)
	if err != nil {
		return ""
	}
	return v
}

// DeleteRefreshToken permanently removes the refresh token from the system keyring.
func DeleteRefreshToken() error {
	return keyring.Delete(keyringService, keyringRefreshUser)
}

// SavePassword stores the provider account password in the system keyring.
func SavePassword(password string) error {
	return keyring.Set(keyringService, keyringPasswordUser, password)
}

// LoadPassword retrieves the stored account password, or "" when absent.
func LoadPassword() string {
	v, err := keyring.Get(keyringService, keyringPasswordUser)
	if err != nil {
		return ""
	}
	return v
}

// DeletePassword removes the account password from the system keyring.
func DeletePassword() error {
	return keyring.Delete(keyringService, keyringPasswordUser)
}
