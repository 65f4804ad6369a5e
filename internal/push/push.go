// Package push delivers expiration digests to users' devices.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dukerupert/larder/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a device's subscription is gone for good
// (410 Gone or 404 Not Found from the push service).
var ErrExpired = errors.New("push subscription expired")

// ErrUnsupportedPlatform is returned for devices no sender can reach.
var ErrUnsupportedPlatform = errors.New("unsupported push platform")

// Payload is the JSON sent to the device.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Sender delivers one payload to one device.
type Sender interface {
	Send(ctx context.Context, d model.Device, p Payload) error
}

// Router hands each device to the sender registered for its platform.
type Router map[string]Sender

func (r Router) Send(ctx context.Context, d model.Device, p Payload) error {
	s, ok := r[d.Platform]
	if !ok {
		return fmt.Errorf("device %d on %s: %w", d.ID, d.Platform, ErrUnsupportedPlatform)
	}
	return s.Send(ctx, d, p)
}

// Supports reports whether s can deliver to platform. A nil sender reaches
// nothing; a Router reaches the platforms it has senders for.
func Supports(s Sender, platform string) bool {
	switch s := s.(type) {
	case nil:
		return false
	case Router:
		_, ok := s[platform]
		return ok
	case *WebPush:
		return platform == model.PlatformWeb
	case *FCM:
		return platform == model.PlatformAndroid || platform == model.PlatformIOS
	}
	return true
}

// WebPush sends to browser subscriptions signed with VAPID keys.
type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	client     *http.Client
}

// NewWebPush creates a Web Push sender. subscriber is the contact address
// push services see, e.g. "mailto:ops@example.com".
func NewWebPush(publicKey, privateKey, subscriber string) *WebPush {
	return &WebPush{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// VAPIDPublicKey is handed to clients so they can subscribe.
func (w *WebPush) VAPIDPublicKey() string {
	return w.publicKey
}

// Send delivers p to a web device. For web devices the token is the
// subscription endpoint.
func (w *WebPush) Send(ctx context.Context, d model.Device, p Payload) error {
	if d.Platform != model.PlatformWeb {
		return fmt.Errorf("device %d on %s: %w", d.ID, d.Platform, ErrUnsupportedPlatform)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: d.Token,
		Keys: webpush.Keys{
			P256dh: d.P256dhKey,
			Auth:   d.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		Subscriber:      w.subscriber,
		TTL:             86400,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone, resp.StatusCode == http.StatusNotFound:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys creates a new VAPID key pair, both base64url encoded.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
