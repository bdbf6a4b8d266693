// Package wire converts the public message model into the FCM HTTP v1
// request body. Encoding is pure: the same input always yields the same
// bytes and the input is never modified.
package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tinywideclouds/go-fcm-relay/internal/validate"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// SendRequest is the body of a messages:send call.
type SendRequest struct {
	Message      *Message `json:"message"`
	ValidateOnly bool     `json:"validate_only,omitempty"`
}

type Message struct {
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"topic,omitempty"`
	Condition    string            `json:"condition,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
	FCMOptions   *FCMOptions       `json:"fcm_options,omitempty"`
}

type Notification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

type FCMOptions struct {
	AnalyticsLabel string `json:"analytics_label,omitempty"`
}

type AndroidConfig struct {
	CollapseKey           string               `json:"collapse_key,omitempty"`
	Priority              string               `json:"priority,omitempty"`
	TTL                   string               `json:"ttl,omitempty"`
	RestrictedPackageName string               `json:"restricted_package_name,omitempty"`
	Data                  map[string]string    `json:"data,omitempty"`
	Notification          *AndroidNotification `json:"notification,omitempty"`
	FCMOptions            *FCMOptions          `json:"fcm_options,omitempty"`
	DirectBootOK          bool                 `json:"direct_boot_ok,omitempty"`
}

type AndroidNotification struct {
	Title                 string         `json:"title,omitempty"`
	Body                  string         `json:"body,omitempty"`
	Icon                  string         `json:"icon,omitempty"`
	Color                 string         `json:"color,omitempty"`
	Sound                 string         `json:"sound,omitempty"`
	Tag                   string         `json:"tag,omitempty"`
	Image                 string         `json:"image,omitempty"`
	ClickAction           string         `json:"click_action,omitempty"`
	BodyLocKey            string         `json:"body_loc_key,omitempty"`
	BodyLocArgs           []string       `json:"body_loc_args,omitempty"`
	TitleLocKey           string         `json:"title_loc_key,omitempty"`
	TitleLocArgs          []string       `json:"title_loc_args,omitempty"`
	ChannelID             string         `json:"channel_id,omitempty"`
	Ticker                string         `json:"ticker,omitempty"`
	Sticky                bool           `json:"sticky,omitempty"`
	EventTime             string         `json:"event_time,omitempty"`
	LocalOnly             bool           `json:"local_only,omitempty"`
	NotificationPriority  string         `json:"notification_priority,omitempty"`
	VibrateTimings        []string       `json:"vibrate_timings,omitempty"`
	DefaultVibrateTimings bool           `json:"default_vibrate_timings,omitempty"`
	DefaultSound          bool           `json:"default_sound,omitempty"`
	LightSettings         *LightSettings `json:"light_settings,omitempty"`
	DefaultLightSettings  bool           `json:"default_light_settings,omitempty"`
	Visibility            string         `json:"visibility,omitempty"`
	NotificationCount     *int           `json:"notification_count,omitempty"`
}

type LightSettings struct {
	Color            *Color `json:"color"`
	LightOnDuration  string `json:"light_on_duration"`
	LightOffDuration string `json:"light_off_duration"`
}

// Color is an RGBA color with each channel in [0, 1].
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	Alpha float64 `json:"alpha"`
}

type WebpushConfig struct {
	Headers      map[string]string  `json:"headers,omitempty"`
	Data         map[string]string  `json:"data,omitempty"`
	Notification json.RawMessage    `json:"notification,omitempty"`
	FCMOptions   *WebpushFCMOptions `json:"fcm_options,omitempty"`
}

type WebpushFCMOptions struct {
	Link           string `json:"link,omitempty"`
	AnalyticsLabel string `json:"analytics_label,omitempty"`
}

type APNSConfig struct {
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	FCMOptions *APNSFCMOptions   `json:"fcm_options,omitempty"`
}

type APNSFCMOptions struct {
	AnalyticsLabel string `json:"analytics_label,omitempty"`
	Image          string `json:"image,omitempty"`
}

// Encode converts a validated message into its wire form. Callers are
// expected to run validate.Message first; Encode only fails on values it
// cannot represent.
func Encode(msg *messaging.Message) (*Message, error) {
	out := &Message{
		Token:     msg.Token,
		Condition: msg.Condition,
		Data:      msg.Data,
	}
	if msg.Topic != "" {
		out.Topic = validate.TopicPrefix + validate.NormalizeTopic(msg.Topic)
	}
	if n := msg.Notification; n != nil {
		out.Notification = &Notification{Title: n.Title, Body: n.Body, Image: n.ImageURL}
	}
	if o := msg.FCMOptions; o != nil {
		out.FCMOptions = &FCMOptions{AnalyticsLabel: o.AnalyticsLabel}
	}

	var err error
	if out.Android, err = encodeAndroid(msg.Android); err != nil {
		return nil, fmt.Errorf("android: %w", err)
	}
	if out.APNS, err = encodeAPNS(msg.APNS); err != nil {
		return nil, fmt.Errorf("apns: %w", err)
	}
	if out.Webpush, err = encodeWebpush(msg.Webpush); err != nil {
		return nil, fmt.Errorf("webpush: %w", err)
	}
	return out, nil
}

// Marshal encodes msg and returns the complete messages:send body.
func Marshal(msg *messaging.Message, validateOnly bool) ([]byte, error) {
	wm, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SendRequest{Message: wm, ValidateOnly: validateOnly})
}

// Duration renders milliseconds in the protobuf Duration JSON form:
// 5000 is "5s" and 5 is "0.005000000s".
func Duration(ms messaging.Millis) string {
	total := int64(math.Round(float64(ms) * 1e6))
	seconds, nanos := total/1e9, total%1e9
	if nanos > 0 {
		return fmt.Sprintf("%d.%09ds", seconds, nanos)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Timestamp renders t in UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseColor converts "#RRGGBB" or "#RRGGBBAA" into channel fractions.
// Alpha is 1 when absent.
func ParseColor(hex string) (*Color, error) {
	s := strings.TrimPrefix(hex, "#")
	if len(s) != 6 && len(s) != 8 {
		return nil, fmt.Errorf("invalid color %q", hex)
	}
	channels := make([]float64, 4)
	channels[3] = 1
	for i := 0; i < len(s)/2; i++ {
		v, err := strconv.ParseUint(s[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid color %q: %w", hex, err)
		}
		channels[i] = float64(v) / 255
	}
	return &Color{Red: channels[0], Green: channels[1], Blue: channels[2], Alpha: channels[3]}, nil
}

func encodeAndroid(cfg *messaging.AndroidConfig) (*AndroidConfig, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &AndroidConfig{
		CollapseKey:           cfg.CollapseKey,
		Priority:              string(cfg.Priority),
		RestrictedPackageName: cfg.RestrictedPackageName,
		Data:                  cfg.Data,
		DirectBootOK:          cfg.DirectBootOK,
	}
	if cfg.TTL != nil {
		out.TTL = Duration(*cfg.TTL)
	}
	if o := cfg.FCMOptions; o != nil {
		out.FCMOptions = &FCMOptions{AnalyticsLabel: o.AnalyticsLabel}
	}
	n := cfg.Notification
	if n == nil {
		return out, nil
	}

	an := &AndroidNotification{
		Title:                 n.Title,
		Body:                  n.Body,
		Icon:                  n.Icon,
		Color:                 n.Color,
		Sound:                 n.Sound,
		Tag:                   n.Tag,
		Image:                 n.ImageURL,
		ClickAction:           n.ClickAction,
		BodyLocKey:            n.BodyLocKey,
		BodyLocArgs:           n.BodyLocArgs,
		TitleLocKey:           n.TitleLocKey,
		TitleLocArgs:          n.TitleLocArgs,
		ChannelID:             n.ChannelID,
		Ticker:                n.Ticker,
		Sticky:                n.Sticky,
		LocalOnly:             n.LocalOnly,
		DefaultVibrateTimings: n.DefaultVibrateTimings,
		DefaultSound:          n.DefaultSound,
		DefaultLightSettings:  n.DefaultLightSettings,
		Visibility:            strings.ToUpper(string(n.Visibility)),
		NotificationCount:     n.NotificationCount,
	}
	if n.EventTimestamp != nil {
		an.EventTime = Timestamp(*n.EventTimestamp)
	}
	if n.Priority != "" {
		an.NotificationPriority = "PRIORITY_" + strings.ToUpper(string(n.Priority))
	}
	if len(n.VibrateTimingsMillis) > 0 {
		an.VibrateTimings = make([]string, len(n.VibrateTimingsMillis))
		for i, v := range n.VibrateTimingsMillis {
			an.VibrateTimings[i] = Duration(v)
		}
	}
	if ls := n.LightSettings; ls != nil {
		color, err := ParseColor(ls.Color)
		if err != nil {
			return nil, err
		}
		an.LightSettings = &LightSettings{
			Color:            color,
			LightOnDuration:  Duration(ls.LightOnDurationMillis),
			LightOffDuration: Duration(ls.LightOffDurationMillis),
		}
	}
	out.Notification = an
	return out, nil
}

func encodeWebpush(cfg *messaging.WebpushConfig) (*WebpushConfig, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &WebpushConfig{Headers: cfg.Headers, Data: cfg.Data}
	if cfg.Notification != nil {
		raw, err := json.Marshal(cfg.Notification)
		if err != nil {
			return nil, err
		}
		out.Notification = raw
	}
	if o := cfg.FCMOptions; o != nil {
		out.FCMOptions = &WebpushFCMOptions{Link: o.Link, AnalyticsLabel: o.AnalyticsLabel}
	}
	return out, nil
}
