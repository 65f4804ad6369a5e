package model

import "time"

// Device platforms.
const (
	PlatformWeb     = "web"
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
)

// Notification kinds recorded in the send log.
const (
	NotifKindExpiryDigest = "expiry_digest"
)

type Device struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	Token      string    `json:"token"`
	Platform   string    `json:"platform"`
	P256dhKey  string    `json:"p256dh_key,omitempty"`
	AuthKey    string    `json:"auth_key,omitempty"`
	LastActive time.Time `json:"last_active"`
}

type NotificationPreference struct {
	UserID         string `json:"user_id"`
	Enabled        bool   `json:"enabled"`
	NotifyTime     string `json:"notify_time"`
	TimezoneOffset int    `json:"timezone_offset"`
}

// DefaultNotificationPreference is used for users who never saved one.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:     userID,
		Enabled:    true,
		NotifyTime: "09:00",
	}
}
