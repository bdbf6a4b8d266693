package messaging

import (
	"encoding/json"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
)

// WebpushConfig holds Web Push protocol options.
type WebpushConfig struct {
	Headers      map[string]string    `json:"headers,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
	Notification *WebpushNotification `json:"notification,omitempty"`
	FCMOptions   *WebpushFCMOptions   `json:"fcmOptions,omitempty"`
}

// WebpushFCMOptions are FCM features for Web Push messages. Link must be
// an HTTPS URL.
type WebpushFCMOptions struct {
	Link           string `json:"link,omitempty"`
	AnalyticsLabel string `json:"analyticsLabel,omitempty"`
}

// WebpushNotificationAction is a button shown on a web notification.
type WebpushNotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Direction is the text direction of a web notification.
type Direction string

const (
	DirectionAuto Direction = "auto"
	DirectionLTR  Direction = "ltr"
	DirectionRTL  Direction = "rtl"
)

// Vibration is a vibrate pattern in milliseconds. A single JSON number is
// accepted as a one-element pattern.
type Vibration []int

func (v *Vibration) UnmarshalJSON(data []byte) error {
	switch jsonobj.Kind(data) {
	case 'd':
		var n int
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Vibration{n}
		return nil
	case 'n':
		*v = nil
		return nil
	}
	var pattern []int
	if err := json.Unmarshal(data, &pattern); err != nil {
		return err
	}
	*v = pattern
	return nil
}

// WebpushNotification is a Web Notification. Keys not modelled here go in
// CustomData and are sent after the typed keys.
type WebpushNotification struct {
	Title              string                      `json:"title,omitempty"`
	Body               string                      `json:"body,omitempty"`
	Icon               string                      `json:"icon,omitempty"`
	Actions            []WebpushNotificationAction `json:"actions,omitempty"`
	Badge              string                      `json:"badge,omitempty"`
	Direction          Direction                   `json:"dir,omitempty"`
	Data               any                         `json:"data,omitempty"`
	Image              string                      `json:"image,omitempty"`
	Language           string                      `json:"lang,omitempty"`
	Renotify           bool                        `json:"renotify,omitempty"`
	RequireInteraction bool                        `json:"requireInteraction,omitempty"`
	Silent             bool                        `json:"silent,omitempty"`
	Tag                string                      `json:"tag,omitempty"`
	TimestampMillis    *int64                      `json:"timestamp,omitempty"`
	Vibrate            Vibration                   `json:"vibrate,omitempty"`
	CustomData         CustomData                  `json:"-"`
}

var webpushNotificationKeys = map[string]bool{
	"title": true, "body": true, "icon": true, "actions": true, "badge": true,
	"dir": true, "data": true, "image": true, "lang": true, "renotify": true,
	"requireInteraction": true, "silent": true, "tag": true, "timestamp": true,
	"vibrate": true,
}

func (n WebpushNotification) MarshalJSON() ([]byte, error) {
	type plain WebpushNotification
	known, err := json.Marshal(plain(n))
	if err != nil {
		return nil, err
	}
	return mergeCustom(known, n.CustomData)
}

func (n *WebpushNotification) UnmarshalJSON(data []byte) error {
	type plain WebpushNotification
	var p plain
	custom, err := splitCustom(data, &p, webpushNotificationKeys)
	if err != nil {
		return err
	}
	*n = WebpushNotification(p)
	n.CustomData = custom
	return nil
}
