package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

type PushStore struct {
	db database.DBTX
}

func NewPushStore(db database.DBTX) *PushStore {
	return &PushStore{db: db}
}

const deviceCols = `id, user_id, token, platform, p256dh_key, auth_key, last_active`

func scanDevice(sc scanner) (*model.Device, error) {
	var d model.Device
	if err := sc.Scan(&d.ID, &d.UserID, &d.Token, &d.Platform, &d.P256dhKey, &d.AuthKey, &d.LastActive); err != nil {
		return nil, err
	}
	return &d, nil
}

// RegisterDevice upserts a device by token. A token seen again moves to the
// registering user and refreshes its keys.
func (s *PushStore) RegisterDevice(ctx context.Context, userID, token, platform, p256dh, auth string) (*model.Device, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (user_id, token, platform, p256dh_key, auth_key)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET
		     user_id = excluded.user_id,
		     platform = excluded.platform,
		     p256dh_key = excluded.p256dh_key,
		     auth_key = excluded.auth_key,
		     last_active = CURRENT_TIMESTAMP`,
		userID, token, platform, p256dh, auth,
	)
	if err != nil {
		return nil, translate("register device", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceCols+` FROM devices WHERE token = ?`, token)
	d, err := scanDevice(row)
	if err != nil {
		return nil, translate("get device", err)
	}
	return d, nil
}

// UnregisterDevice removes a token owned by the user.
func (s *PushStore) UnregisterDevice(ctx context.Context, userID, token string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE user_id = ? AND token = ?`, userID, token)
	if err != nil {
		return fmt.Errorf("unregister device: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("unregister device: %w", model.ErrNotFound)
	}
	return nil
}

// DeleteByToken drops a device the push service reported as gone.
func (s *PushStore) DeleteByToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete device by token: %w", err)
	}
	return nil
}

func (s *PushStore) ListDevices(ctx context.Context, userID string) ([]model.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceCols+` FROM devices WHERE user_id = ? ORDER BY last_active DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// GetPreference returns the user's preference, or the defaults if none was
// saved.
func (s *PushStore) GetPreference(ctx context.Context, userID string) (model.NotificationPreference, error) {
	p := model.NotificationPreference{UserID: userID}
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, notify_time, timezone_offset FROM notification_preferences WHERE user_id = ?`, userID,
	).Scan(&enabled, &p.NotifyTime, &p.TimezoneOffset)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultNotificationPreference(userID), nil
	}
	if err != nil {
		return p, fmt.Errorf("get notification preference: %w", err)
	}
	p.Enabled = enabled == 1
	return p, nil
}

func (s *PushStore) SetPreference(ctx context.Context, p model.NotificationPreference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, enabled, notify_time, timezone_offset)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     enabled = excluded.enabled,
		     notify_time = excluded.notify_time,
		     timezone_offset = excluded.timezone_offset`,
		p.UserID, boolToInt(p.Enabled), p.NotifyTime, p.TimezoneOffset,
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

// ListRecipients returns the preferences of every user that has a device
// and has not disabled notifications. Users without a saved preference get
// the defaults.
func (s *PushStore) ListRecipients(ctx context.Context) ([]model.NotificationPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.user_id, COALESCE(p.notify_time, '09:00'), COALESCE(p.timezone_offset, 0)
		 FROM (SELECT DISTINCT user_id FROM devices) d
		 LEFT JOIN notification_preferences p ON p.user_id = d.user_id
		 WHERE COALESCE(p.enabled, 1) = 1
		 ORDER BY d.user_id`)
	if err != nil {
		return nil, fmt.Errorf("list notification recipients: %w", err)
	}
	defer rows.Close()

	var prefs []model.NotificationPreference
	for rows.Next() {
		p := model.NotificationPreference{Enabled: true}
		if err := rows.Scan(&p.UserID, &p.NotifyTime, &p.TimezoneOffset); err != nil {
			return nil, fmt.Errorf("scan notification recipient: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// RecordSent marks a notification as delivered for dedup. Recording the same
// (user, kind, day) twice is a no-op.
func (s *PushStore) RecordSent(ctx context.Context, userID, kind string, day model.Date) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notification_log (user_id, kind, day) VALUES (?, ?, ?)`,
		userID, kind, day,
	)
	if err != nil {
		return fmt.Errorf("record sent notification: %w", err)
	}
	return nil
}

func (s *PushStore) WasSent(ctx context.Context, userID, kind string, day model.Date) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_log WHERE user_id = ? AND kind = ? AND day = ?`,
		userID, kind, day,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes log entries for days before the given one.
func (s *PushStore) CleanupSent(ctx context.Context, before model.Date) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notification_log WHERE day < ?`, before); err != nil {
		return fmt.Errorf("cleanup sent notifications: %w", err)
	}
	return nil
}
