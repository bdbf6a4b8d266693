// Package validate checks messages locally before anything is sent. The
// first failed rule is returned as a messaging/invalid-payload error with a
// fixed message naming the offending field. Inputs are never modified.
package validate

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

var (
	rgbColor  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	rgbaColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)

	analyticsLabel = regexp.MustCompile(`^[a-zA-Z0-9-_.~%]{1,50}$`)
)

// reservedDataKeys may not be used as data keys; neither may any key with
// one of reservedDataPrefixes.
var (
	reservedDataKeys     = []string{"from", "message_type"}
	reservedDataPrefixes = []string{"google", "gcm"}
)

func invalid(msg string) error {
	return messaging.NewError(messaging.CodeInvalidPayload, msg)
}

// Message validates a single message.
func Message(msg *messaging.Message) error {
	if msg == nil {
		return invalid("message must be a non-null object")
	}
	if msg.Topic != "" && !IsTopic(NormalizeTopic(msg.Topic)) {
		return invalid("Malformed topic name")
	}

	targets := 0
	for _, t := range []string{msg.Token, msg.Topic, msg.Condition} {
		if t != "" {
			targets++
		}
	}
	if targets != 1 {
		return invalid("Exactly one of topic, token or condition is required")
	}

	if err := dataKeys("data", msg.Data); err != nil {
		return err
	}
	if n := msg.Notification; n != nil && n.ImageURL != "" && !IsURL(n.ImageURL) {
		return invalid("notification.imageUrl must be a valid URL string")
	}
	if o := msg.FCMOptions; o != nil {
		if err := label("fcmOptions", o.AnalyticsLabel); err != nil {
			return err
		}
	}
	if err := androidConfig(msg.Android); err != nil {
		return err
	}
	if err := apnsConfig(msg.APNS); err != nil {
		return err
	}
	return webpushConfig(msg.Webpush)
}

func androidConfig(cfg *messaging.AndroidConfig) error {
	if cfg == nil {
		return nil
	}
	switch cfg.Priority {
	case "", messaging.AndroidPriorityNormal, messaging.AndroidPriorityHigh:
	default:
		return invalid(`android.priority must be "normal" or "high"`)
	}
	if cfg.TTL != nil && *cfg.TTL < 0 {
		return invalid("TTL must be a non-negative duration in milliseconds")
	}
	if err := dataKeys("android.data", cfg.Data); err != nil {
		return err
	}
	if o := cfg.FCMOptions; o != nil {
		if err := label("android.fcmOptions", o.AnalyticsLabel); err != nil {
			return err
		}
	}
	return androidNotification(cfg.Notification)
}

func androidNotification(n *messaging.AndroidNotification) error {
	if n == nil {
		return nil
	}
	if n.Color != "" && !rgbColor.MatchString(n.Color) {
		return invalid("android.notification.color must be in the form #RRGGBB")
	}
	if len(n.BodyLocArgs) > 0 && n.BodyLocKey == "" {
		return invalid("android.notification.bodyLocKey is required when specifying bodyLocArgs")
	}
	if len(n.TitleLocArgs) > 0 && n.TitleLocKey == "" {
		return invalid("android.notification.titleLocKey is required when specifying titleLocArgs")
	}
	if n.ImageURL != "" && !IsURL(n.ImageURL) {
		return invalid("android.notification.imageUrl must be a valid URL string")
	}
	if n.VibrateTimingsMillis != nil {
		if len(n.VibrateTimingsMillis) == 0 {
			return invalid("android.notification.vibrateTimingsMillis must be a non-empty array of numbers")
		}
		for _, v := range n.VibrateTimingsMillis {
			if v < 0 {
				return invalid("android.notification.vibrateTimingsMillis must be non-negative durations in milliseconds")
			}
		}
	}
	switch n.Priority {
	case "", messaging.PriorityMin, messaging.PriorityLow, messaging.PriorityDefault,
		messaging.PriorityHigh, messaging.PriorityMax:
	default:
		return invalid("android.notification.priority must be one of min, low, default, high or max")
	}
	switch n.Visibility {
	case "", messaging.VisibilityPrivate, messaging.VisibilityPublic, messaging.VisibilitySecret:
	default:
		return invalid("android.notification.visibility must be one of private, public or secret")
	}
	if ls := n.LightSettings; ls != nil {
		if ls.LightOnDurationMillis < 0 {
			return invalid("android.notification.lightSettings.lightOnDurationMillis must be a non-negative duration in milliseconds")
		}
		if ls.LightOffDurationMillis < 0 {
			return invalid("android.notification.lightSettings.lightOffDurationMillis must be a non-negative duration in milliseconds")
		}
		if !rgbaColor.MatchString(ls.Color) {
			return invalid("android.notification.lightSettings.color must be in the form #RRGGBB or #RRGGBBAA format")
		}
	}
	if n.NotificationCount != nil && *n.NotificationCount < 0 {
		return invalid("android.notification.notificationCount must be a non-negative integer")
	}
	return nil
}

// apsAliases maps typed Aps keys to the dash-case key APNs expects.
var apsAliases = []struct {
	camel, dash string
	set         func(*messaging.Aps) bool
}{
	{"contentAvailable", "content-available", func(a *messaging.Aps) bool { return a.ContentAvailable }},
	{"mutableContent", "mutable-content", func(a *messaging.Aps) bool { return a.MutableContent }},
	{"threadId", "thread-id", func(a *messaging.Aps) bool { return a.ThreadID != "" }},
}

func apnsConfig(cfg *messaging.APNSConfig) error {
	if cfg == nil {
		return nil
	}
	if p := cfg.Payload; p != nil {
		if p.Aps == nil {
			return invalid("apns.payload.aps must be a non-null object")
		}
		if err := aps(p.Aps); err != nil {
			return err
		}
	}
	if o := cfg.FCMOptions; o != nil {
		if o.ImageURL != "" && !IsURL(o.ImageURL) {
			return invalid("apns.fcmOptions.imageUrl must be a valid URL string")
		}
		if err := label("apns.fcmOptions", o.AnalyticsLabel); err != nil {
			return err
		}
	}
	return nil
}

func aps(a *messaging.Aps) error {
	for _, alias := range apsAliases {
		if (alias.set(a) || a.Decoded(alias.camel)) && a.CustomData.Has(alias.dash) {
			return invalid(fmt.Sprintf("Multiple specifications for %s in Aps", alias.camel))
		}
	}
	if a.AlertString != "" && a.Alert != nil {
		return invalid("apns.payload.aps.alert must be a string or a non-null object")
	}
	if al := a.Alert; al != nil {
		if len(al.LocArgs) > 0 && al.LocKey == "" {
			return invalid("apns.payload.aps.alert.locKey is required when specifying locArgs")
		}
		if len(al.TitleLocArgs) > 0 && al.TitleLocKey == "" {
			return invalid("apns.payload.aps.alert.titleLocKey is required when specifying titleLocArgs")
		}
		if len(al.SubtitleLocArgs) > 0 && al.SubtitleLocKey == "" {
			return invalid("apns.payload.aps.alert.subtitleLocKey is required when specifying subtitleLocArgs")
		}
	}
	if a.Sound != "" && a.CriticalSound != nil {
		return invalid("apns.payload.aps.sound must be a non-empty string or a non-null object")
	}
	if s := a.CriticalSound; s != nil {
		if s.Name == "" {
			return invalid("apns.payload.aps.sound.name must be a non-empty string")
		}
		if s.Volume != nil && (*s.Volume < 0 || *s.Volume > 1) {
			return invalid("apns.payload.aps.sound.volume must be in the interval [0, 1]")
		}
	}
	return nil
}

func webpushConfig(cfg *messaging.WebpushConfig) error {
	if cfg == nil {
		return nil
	}
	if err := dataKeys("webpush.data", cfg.Data); err != nil {
		return err
	}
	if o := cfg.FCMOptions; o != nil {
		if o.Link != "" && !IsHTTPSURL(o.Link) {
			return invalid("webpush.fcmOptions.link must be a valid HTTPS URL")
		}
		if err := label("webpush.fcmOptions", o.AnalyticsLabel); err != nil {
			return err
		}
	}
	if n := cfg.Notification; n != nil {
		switch n.Direction {
		case "", messaging.DirectionAuto, messaging.DirectionLTR, messaging.DirectionRTL:
		default:
			return invalid("webpush.notification.direction must be one of auto, ltr or rtl")
		}
	}
	return nil
}

// label checks an fcmOptions analyticsLabel. Empty means unset.
func label(path, l string) error {
	if l != "" && !analyticsLabel.MatchString(l) {
		return invalid(path + ".analyticsLabel is malformed")
	}
	return nil
}

func dataKeys(path string, data map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(data)) {
		if slices.Contains(reservedDataKeys, k) {
			return invalid(fmt.Sprintf("%s must not contain the reserved key %q", path, k))
		}
		for _, prefix := range reservedDataPrefixes {
			if strings.HasPrefix(k, prefix) {
				return invalid(fmt.Sprintf("%s must not contain the reserved key %q", path, k))
			}
		}
	}
	return nil
}
