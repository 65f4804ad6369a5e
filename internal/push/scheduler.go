package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/alerts"
	"github.com/dukerupert/larder/internal/clock"
	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/model"
	"github.com/dukerupert/larder/internal/store"
)

const (
	// DigestHorizonDays is how far ahead the daily digest looks.
	DigestHorizonDays = 3

	MinTimezoneOffset = -840
	MaxTimezoneOffset = 720

	logRetentionDays = 7
)

// Dispatcher sends each user a daily digest of what expires soon, at the
// hour they picked.
type Dispatcher struct {
	mu        sync.RWMutex
	db        database.DBTX
	sender    Sender
	projector *alerts.Projector
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDispatcher(db database.DBTX, sender Sender, projector *alerts.Projector, clk clock.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		db:        db,
		sender:    sender,
		projector: projector,
		clock:     clk,
		logger:    logger,
		interval:  time.Hour,
	}
}

// Start runs the dispatcher every interval until ctx is cancelled or Stop is
// called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := d.Run(ctx); err != nil {
					d.logger.Error("notification run failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Run sends the digest to every user whose notification hour is the current
// UTC hour and who has not had one today. It returns the number of
// successful deliveries. Failures for one user or device are logged and do
// not stop the run.
func (d *Dispatcher) Run(ctx context.Context) (int, error) {
	now := d.clock.Now().UTC()
	day := model.DateOf(now)
	ps := store.NewPushStore(d.db)

	recipients, err := ps.ListRecipients(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range recipients {
		hour, err := TargetUTCHour(r.NotifyTime, r.TimezoneOffset)
		if err != nil {
			d.logger.Warn("bad notification preference", "user_id", r.UserID, "error", err)
			continue
		}
		if hour != now.Hour() {
			continue
		}
		n, err := d.notify(ctx, ps, r.UserID, day)
		if err != nil {
			d.logger.Error("notify user", "user_id", r.UserID, "error", err)
			continue
		}
		sent += n
	}

	if err := ps.CleanupSent(ctx, day.AddDays(-logRetentionDays)); err != nil {
		d.logger.Warn("cleanup notification log", "error", err)
	}
	if sent > 0 {
		d.logger.Info("expiry digests sent", "count", sent)
	}
	return sent, nil
}

func (d *Dispatcher) notify(ctx context.Context, ps *store.PushStore, userID string, day model.Date) (int, error) {
	already, err := ps.WasSent(ctx, userID, model.NotifKindExpiryDigest, day)
	if err != nil || already {
		return 0, err
	}

	names, err := d.expiringFor(ctx, userID)
	if err != nil || len(names) == 0 {
		return 0, err
	}
	devices, err := ps.ListDevices(ctx, userID)
	if err != nil || len(devices) == 0 {
		return 0, err
	}

	payload := Payload{
		Title: "Caducidad próxima",
		Body:  DigestMessage(names),
		URL:   "/alerts",
		Tag:   model.NotifKindExpiryDigest,
	}

	delivered := 0
	for _, dev := range devices {
		err := d.sender.Send(ctx, dev, payload)
		metrics.ObservePush(err)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrExpired):
			d.logger.Info("removing expired device", "user_id", userID, "device_id", dev.ID)
			if err := ps.DeleteByToken(ctx, dev.Token); err != nil {
				d.logger.Warn("remove expired device", "device_id", dev.ID, "error", err)
			}
		default:
			d.logger.Warn("send digest", "user_id", userID, "device_id", dev.ID, "platform", dev.Platform, "error", err)
		}
	}

	if delivered > 0 {
		if err := ps.RecordSent(ctx, userID, model.NotifKindExpiryDigest, day); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

// expiringFor lists the names of products that expire within the digest
// horizon across all of the user's households, soonest first. Lines that
// already expired are left out.
func (d *Dispatcher) expiringFor(ctx context.Context, userID string) ([]string, error) {
	memberships, err := store.NewHouseholdStore(d.db).ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range memberships {
		list, err := d.projector.Get(ctx, m.ID, DigestHorizonDays)
		if err != nil {
			return nil, err
		}
		for _, a := range list {
			if a.DaysLeft >= 0 {
				names = append(names, a.ProductName)
			}
		}
	}
	return names, nil
}

// DigestMessage summarizes the expiring products:
//
//	Leche caduca pronto
//	Leche y Pan caducan pronto
//	Leche, Pan y 3 más caducan pronto
func DigestMessage(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " caduca pronto"
	case 2:
		return names[0] + " y " + names[1] + " caducan pronto"
	}
	return fmt.Sprintf("%s, %s y %d más caducan pronto", names[0], names[1], len(names)-2)
}

// ParseNotifyTime validates an "HH:MM" local time. A trailing ":SS" is
// accepted and ignored.
func ParseNotifyTime(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, fmt.Errorf("notify time %q is not HH:MM: %w", s, model.ErrValidation)
	}
	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("notify time %q is not HH:MM: %w", s, model.ErrValidation)
	}
	return hour, minute, nil
}

// ValidTimezoneOffset reports whether offset is a browser timezone offset in
// minutes (UTC = local + offset).
func ValidTimezoneOffset(offset int) bool {
	return offset >= MinTimezoneOffset && offset <= MaxTimezoneOffset
}

// TargetUTCHour converts a local notify time to the UTC hour it falls in.
// offset follows the browser convention, so UTC+1 is -60.
func TargetUTCHour(notifyTime string, offset int) (int, error) {
	h, m, err := ParseNotifyTime(notifyTime)
	if err != nil {
		return 0, err
	}
	if !ValidTimezoneOffset(offset) {
		return 0, fmt.Errorf("timezone offset %d out of range: %w", offset, model.ErrValidation)
	}
	minutes := ((h*60+m+offset)%1440 + 1440) % 1440
	return minutes / 60, nil
}
