// Package backup takes encrypted snapshots of the database and keeps them
// in S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const keyPrefix = "backups/"

// ErrDisabled is returned when storage or the passphrase is not configured.
var ErrDisabled = errors.New("backups are not configured")

// objectStore is the part of the S3 API backups use.
type objectStore interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds storage and schedule settings.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Passphrase string
	// Hour is the UTC hour of the daily backup.
	Hour          int
	RetentionDays int
}

func (c Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Manager runs backups on a daily schedule and on demand. Runs never
// overlap.
type Manager struct {
	run    sync.Mutex
	mu     sync.RWMutex
	cfg    Config
	db     *sql.DB
	client objectStore
	clock  clock.Clock
	logger *slog.Logger

	lastScheduled model.Date
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewManager creates a manager. Without a complete Config it is disabled:
// Start does nothing and Run returns ErrDisabled.
func NewManager(cfg Config, db *sql.DB, clk clock.Clock, logger *slog.Logger) *Manager {
	m := &Manager{cfg: cfg, db: db, clock: clk, logger: logger}
	if cfg.complete() {
		m.client = newS3Client(cfg)
	}
	return m
}

func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start checks the schedule every minute until ctx is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled")
		return
	}
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	now := m.clock.Now().UTC()
	today := model.DateOf(now)
	if now.Hour() != m.cfg.Hour || m.lastScheduled == today {
		return
	}
	m.lastScheduled = today

	if _, err := m.Run(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if _, err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// Run snapshots the database, encrypts it and uploads it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.run.Lock()
	defer m.run.Unlock()

	bs := store.NewBackupStore(m.db)
	key := fmt.Sprintf("%slarder-%s.db.enc", keyPrefix, m.clock.Now().UTC().Format("20060102T150405Z"))
	rec, err := bs.Create(ctx, key)
	if err != nil {
		return nil, err
	}

	size, err := m.upload(ctx, key)
	metrics.ObserveBackup(err)
	if err != nil {
		if markErr := bs.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			m.logger.Warn("record failed backup", "backup_id", rec.ID, "error", markErr)
		}
		return nil, err
	}
	if err := bs.MarkCompleted(ctx, rec.ID, size); err != nil {
		return nil, err
	}
	m.logger.Info("backup completed", "key", key, "size_bytes", size)
	return bs.GetByID(ctx, rec.ID)
}

func (m *Manager) upload(ctx context.Context, key string) (int64, error) {
	dir, err := os.MkdirTemp("", "larder-backup-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	plain, err := os.ReadFile(snapshot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Encrypt(plain, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt snapshot: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// Cleanup deletes snapshots older than the retention window and returns how
// many were removed. A failed delete is logged and skipped.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if !m.Enabled() || m.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := m.clock.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	bs := store.NewBackupStore(m.db)

	var stale []string
	pages := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.Bucket),
		Prefix: aws.String(keyPrefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				stale = append(stale, *obj.Key)
			}
		}
	}

	removed := 0
	for _, key := range stale {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete old backup", "key", key, "error", err)
			continue
		}
		if err := bs.DeleteByKey(ctx, key); err != nil {
			m.logger.Warn("delete old backup record", "key", key, "error", err)
		}
		removed++
	}
	return removed, nil
}
