package wire

import (
	"encoding/json"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
	"github.com/tinywideclouds/go-fcm-relay/pkg/messaging"
)

// apnsFlags are the aps keys APNs reads as the integer 1 and ignores
// otherwise.
var apnsFlags = map[string]bool{
	"content-available": true,
	"mutable-content":   true,
}

func encodeAPNS(cfg *messaging.APNSConfig) (*APNSConfig, error) {
	if cfg == nil {
		return nil, nil
	}
	out := &APNSConfig{Headers: cfg.Headers}
	if o := cfg.FCMOptions; o != nil {
		out.FCMOptions = &APNSFCMOptions{AnalyticsLabel: o.AnalyticsLabel, Image: o.ImageURL}
	}
	if cfg.Payload == nil {
		return out, nil
	}

	var w jsonobj.Writer
	if a := cfg.Payload.Aps; a != nil {
		raw, err := encodeAps(a)
		if err != nil {
			return nil, err
		}
		w.Raw("aps", raw)
	}
	cfg.Payload.CustomData.Each(func(key string, raw json.RawMessage) {
		if key != "aps" {
			w.Raw(key, raw)
		}
	})
	payload, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	out.Payload = payload
	return out, nil
}

func encodeAps(a *messaging.Aps) (json.RawMessage, error) {
	var w jsonobj.Writer
	written := make(map[string]bool)
	field := func(key string, v any) {
		w.Field(key, v)
		written[key] = true
	}

	switch {
	case a.Alert != nil:
		field("alert", encodeAlert(a.Alert))
	case a.AlertString != "":
		field("alert", a.AlertString)
	}
	if a.Badge != nil {
		field("badge", *a.Badge)
	}
	switch {
	case a.CriticalSound != nil:
		field("sound", encodeCriticalSound(a.CriticalSound))
	case a.Sound != "":
		field("sound", a.Sound)
	}
	if a.ContentAvailable {
		field("content-available", 1)
	}
	if a.MutableContent {
		field("mutable-content", 1)
	}
	if a.Category != "" {
		field("category", a.Category)
	}
	if a.ThreadID != "" {
		field("thread-id", a.ThreadID)
	}

	a.CustomData.Each(func(key string, raw json.RawMessage) {
		if written[key] {
			return
		}
		if apnsFlags[key] {
			if isTruthyFlag(raw) {
				field(key, 1)
			}
			return
		}
		w.Raw(key, raw)
	})
	return w.Bytes()
}

// isTruthyFlag reports whether a custom flag value is true or 1.
func isTruthyFlag(raw json.RawMessage) bool {
	switch jsonobj.Kind(raw) {
	case 'b':
		var b bool
		return json.Unmarshal(raw, &b) == nil && b
	case 'd':
		var n float64
		return json.Unmarshal(raw, &n) == nil && n == 1
	}
	return false
}

type alert struct {
	Title           string   `json:"title,omitempty"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Body            string   `json:"body,omitempty"`
	LocKey          string   `json:"loc-key,omitempty"`
	LocArgs         []string `json:"loc-args,omitempty"`
	TitleLocKey     string   `json:"title-loc-key,omitempty"`
	TitleLocArgs    []string `json:"title-loc-args,omitempty"`
	SubtitleLocKey  string   `json:"subtitle-loc-key,omitempty"`
	SubtitleLocArgs []string `json:"subtitle-loc-args,omitempty"`
	ActionLocKey    string   `json:"action-loc-key,omitempty"`
	LaunchImage     string   `json:"launch-image,omitempty"`
}

func encodeAlert(a *messaging.ApsAlert) alert {
	return alert{
		Title:           a.Title,
		Subtitle:        a.Subtitle,
		Body:            a.Body,
		LocKey:          a.LocKey,
		LocArgs:         a.LocArgs,
		TitleLocKey:     a.TitleLocKey,
		TitleLocArgs:    a.TitleLocArgs,
		SubtitleLocKey:  a.SubtitleLocKey,
		SubtitleLocArgs: a.SubtitleLocArgs,
		ActionLocKey:    a.ActionLocKey,
		LaunchImage:     a.LaunchImage,
	}
}

type criticalSound struct {
	Critical int      `json:"critical,omitempty"`
	Name     string   `json:"name"`
	Volume   *float64 `json:"volume,omitempty"`
}

func encodeCriticalSound(s *messaging.CriticalSound) criticalSound {
	out := criticalSound{Name: s.Name, Volume: s.Volume}
	if s.Critical {
		out.Critical = 1
	}
	return out
}
