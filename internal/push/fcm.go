package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/dukerupert/larder/internal/model"
)

// messenger is the part of the FCM client the sender uses.
type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM sends to Android and iOS devices through Firebase Cloud Messaging.
// For native devices the token is the FCM registration token.
type FCM struct {
	client       messenger
	unregistered func(error) bool
}

// NewFCM creates a sender authenticated with a service account key file.
func NewFCM(ctx context.Context, credentialsFile string) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init fcm client: %w", err)
	}
	return &FCM{client: client, unregistered: messaging.IsUnregistered}, nil
}

func (f *FCM) Send(ctx context.Context, d model.Device, p Payload) error {
	if d.Platform != model.PlatformAndroid && d.Platform != model.PlatformIOS {
		return fmt.Errorf("device %d on %s: %w", d.ID, d.Platform, ErrUnsupportedPlatform)
	}
	msg := &messaging.Message{
		Token: d.Token,
		Notification: &messaging.Notification{
			Title: p.Title,
			Body:  p.Body,
		},
		Data: map[string]string{"url": p.URL, "tag": p.Tag},
	}
	if p.Tag != "" {
		msg.Android = &messaging.AndroidConfig{CollapseKey: p.Tag}
		msg.APNS = &messaging.APNSConfig{Headers: map[string]string{"apns-collapse-id": p.Tag}}
	}
	if _, err := f.client.Send(ctx, msg); err != nil {
		if f.unregistered(err) {
			return ErrExpired
		}
		return fmt.Errorf("send fcm: %w", err)
	}
	return nil
}
