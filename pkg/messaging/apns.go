package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-fcm-relay/internal/jsonobj"
)

// APNSConfig holds Apple Push Notification Service options.
type APNSConfig struct {
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    *APNSPayload      `json:"payload,omitempty"`
	FCMOptions *APNSFCMOptions   `json:"fcmOptions,omitempty"`
}

// APNSFCMOptions are FCM features for APNs messages.
type APNSFCMOptions struct {
	AnalyticsLabel string `json:"analyticsLabel,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
}

// APNSPayload is the APNs payload: the aps dictionary plus any top-level
// custom keys, which are passed through verbatim.
type APNSPayload struct {
	Aps        *Aps
	CustomData CustomData
}

func (p APNSPayload) MarshalJSON() ([]byte, error) {
	var w jsonobj.Writer
	if p.Aps != nil {
		w.Field("aps", p.Aps)
	}
	p.CustomData.Each(func(key string, raw json.RawMessage) {
		if key != "aps" {
			w.Raw(key, raw)
		}
	})
	return w.Bytes()
}

func (p *APNSPayload) UnmarshalJSON(data []byte) error {
	members, err := jsonobj.Members(data)
	if err != nil {
		return err
	}
	*p = APNSPayload{}
	for _, m := range members {
		if m.Key != "aps" {
			p.CustomData.SetRaw(m.Key, m.Value)
			continue
		}
		if jsonobj.Kind(m.Value) == 'n' {
			continue
		}
		p.Aps = &Aps{}
		if err := json.Unmarshal(m.Value, p.Aps); err != nil {
			return fmt.Errorf("aps: %w", err)
		}
	}
	return nil
}

// Aps is the aps dictionary. Alert is either AlertString or Alert and sound
// is either Sound or CriticalSound. Keys not modelled here go in CustomData
// and are sent unmodified.
type Aps struct {
	AlertString      string
	Alert            *ApsAlert
	Badge            *int
	Sound            string
	CriticalSound    *CriticalSound
	ContentAvailable bool
	MutableContent   bool
	Category         string
	ThreadID         string
	CustomData       CustomData

	// decoded records the modelled keys present in the JSON this value was
	// decoded from, whatever their value.
	decoded map[string]bool
}

// Decoded reports whether the modelled key (e.g. "contentAvailable") was
// present in the JSON a was decoded from, even with a false or empty value.
func (a *Aps) Decoded(key string) bool {
	return a.decoded[key]
}

// ApsAlert is the structured form of the aps alert.
type ApsAlert struct {
	Title           string   `json:"title,omitempty"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Body            string   `json:"body,omitempty"`
	LocKey          string   `json:"locKey,omitempty"`
	LocArgs         []string `json:"locArgs,omitempty"`
	TitleLocKey     string   `json:"titleLocKey,omitempty"`
	TitleLocArgs    []string `json:"titleLocArgs,omitempty"`
	SubtitleLocKey  string   `json:"subtitleLocKey,omitempty"`
	SubtitleLocArgs []string `json:"subtitleLocArgs,omitempty"`
	ActionLocKey    string   `json:"actionLocKey,omitempty"`
	LaunchImage     string   `json:"launchImage,omitempty"`
}

// CriticalSound is the structured form of the aps sound.
type CriticalSound struct {
	Critical bool     `json:"critical,omitempty"`
	Name     string   `json:"name"`
	Volume   *float64 `json:"volume,omitempty"`
}

func (a Aps) MarshalJSON() ([]byte, error) {
	var w jsonobj.Writer
	switch {
	case a.Alert != nil:
		w.Field("alert", a.Alert)
	case a.AlertString != "":
		w.Field("alert", a.AlertString)
	}
	if a.Badge != nil {
		w.Field("badge", *a.Badge)
	}
	switch {
	case a.CriticalSound != nil:
		w.Field("sound", a.CriticalSound)
	case a.Sound != "":
		w.Field("sound", a.Sound)
	}
	if a.ContentAvailable {
		w.Field("contentAvailable", true)
	}
	if a.MutableContent {
		w.Field("mutableContent", true)
	}
	if a.Category != "" {
		w.Field("category", a.Category)
	}
	if a.ThreadID != "" {
		w.Field("threadId", a.ThreadID)
	}
	known, err := w.Bytes()
	if err != nil {
		return nil, err
	}
	return mergeCustom(known, a.CustomData)
}

func (a *Aps) UnmarshalJSON(data []byte) error {
	members, err := jsonobj.Members(data)
	if err != nil {
		return err
	}
	*a = Aps{}
	for _, m := range members {
		if err := a.decodeMember(m); err != nil {
			return fmt.Errorf("aps.%s: %w", m.Key, err)
		}
		if !a.CustomData.Has(m.Key) {
			if a.decoded == nil {
				a.decoded = make(map[string]bool)
			}
			a.decoded[m.Key] = true
		}
	}
	return nil
}

func (a *Aps) decodeMember(m jsonobj.Member) error {
	switch m.Key {
	case "alert":
		switch jsonobj.Kind(m.Value) {
		case 's':
			return json.Unmarshal(m.Value, &a.AlertString)
		case 'n':
			return nil
		}
		a.Alert = &ApsAlert{}
		return json.Unmarshal(m.Value, a.Alert)
	case "badge":
		if jsonobj.Kind(m.Value) == 'n' {
			return nil
		}
		var badge int
		if err := json.Unmarshal(m.Value, &badge); err != nil {
			return err
		}
		a.Badge = &badge
	case "sound":
		switch jsonobj.Kind(m.Value) {
		case 's':
			return json.Unmarshal(m.Value, &a.Sound)
		case 'n':
			return nil
		}
		a.CriticalSound = &CriticalSound{}
		return json.Unmarshal(m.Value, a.CriticalSound)
	case "contentAvailable":
		return decodeFlag(m.Value, &a.ContentAvailable)
	case "mutableContent":
		return decodeFlag(m.Value, &a.MutableContent)
	case "category":
		return json.Unmarshal(m.Value, &a.Category)
	case "threadId":
		return json.Unmarshal(m.Value, &a.ThreadID)
	default:
		a.CustomData.SetRaw(m.Key, m.Value)
	}
	return nil
}

func (s *CriticalSound) UnmarshalJSON(data []byte) error {
	type plain CriticalSound
	var p struct {
		plain
		Critical json.RawMessage `json:"critical"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = CriticalSound(p.plain)
	if len(p.Critical) == 0 {
		return nil
	}
	return decodeFlag(p.Critical, &s.Critical)
}

// decodeFlag accepts a JSON boolean, or the APNs integer form where 1 means
// true. Any other number is false.
func decodeFlag(raw json.RawMessage, dst *bool) error {
	switch jsonobj.Kind(raw) {
	case 'n':
		*dst = false
		return nil
	case 'd':
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		*dst = n == 1
		return nil
	}
	return json.Unmarshal(raw, dst)
}
