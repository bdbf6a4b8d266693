package messaging

import "time"

// AndroidPriority is the delivery priority of an Android message.
type AndroidPriority string

const (
	AndroidPriorityNormal AndroidPriority = "normal"
	AndroidPriorityHigh   AndroidPriority = "high"
)

// NotificationPriority is the display priority of an Android notification.
type NotificationPriority string

const (
	PriorityMin     NotificationPriority = "min"
	PriorityLow     NotificationPriority = "low"
	PriorityDefault NotificationPriority = "default"
	PriorityHigh    NotificationPriority = "high"
	PriorityMax     NotificationPriority = "max"
)

// Visibility controls how much of a notification shows on the lock screen.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
	VisibilitySecret  Visibility = "secret"
)

// AndroidConfig holds Android-specific message options.
type AndroidConfig struct {
	CollapseKey           string               `json:"collapseKey,omitempty"`
	Priority              AndroidPriority      `json:"priority,omitempty"`
	TTL                   *Millis              `json:"ttl,omitempty"`
	RestrictedPackageName string               `json:"restrictedPackageName,omitempty"`
	Data                  map[string]string    `json:"data,omitempty"`
	Notification          *AndroidNotification `json:"notification,omitempty"`
	FCMOptions            *AndroidFCMOptions   `json:"fcmOptions,omitempty"`
	DirectBootOK          bool                 `json:"directBootOk,omitempty"`
}

// AndroidNotification is the notification shown on Android devices.
type AndroidNotification struct {
	Title                 string               `json:"title,omitempty"`
	Body                  string               `json:"body,omitempty"`
	Icon                  string               `json:"icon,omitempty"`
	Color                 string               `json:"color,omitempty"`
	Sound                 string               `json:"sound,omitempty"`
	Tag                   string               `json:"tag,omitempty"`
	ImageURL              string               `json:"imageUrl,omitempty"`
	ClickAction           string               `json:"clickAction,omitempty"`
	BodyLocKey            string               `json:"bodyLocKey,omitempty"`
	BodyLocArgs           []string             `json:"bodyLocArgs,omitempty"`
	TitleLocKey           string               `json:"titleLocKey,omitempty"`
	TitleLocArgs          []string             `json:"titleLocArgs,omitempty"`
	ChannelID             string               `json:"channelId,omitempty"`
	Ticker                string               `json:"ticker,omitempty"`
	Sticky                bool                 `json:"sticky,omitempty"`
	EventTimestamp        *time.Time           `json:"eventTimestamp,omitempty"`
	LocalOnly             bool                 `json:"localOnly,omitempty"`
	Priority              NotificationPriority `json:"priority,omitempty"`
	VibrateTimingsMillis  []Millis             `json:"vibrateTimingsMillis,omitempty"`
	DefaultVibrateTimings bool                 `json:"defaultVibrateTimings,omitempty"`
	DefaultSound          bool                 `json:"defaultSound,omitempty"`
	LightSettings         *LightSettings       `json:"lightSettings,omitempty"`
	DefaultLightSettings  bool                 `json:"defaultLightSettings,omitempty"`
	Visibility            Visibility           `json:"visibility,omitempty"`
	NotificationCount     *int                 `json:"notificationCount,omitempty"`
}

// LightSettings controls the notification LED. Color is #RRGGBB or
// #RRGGBBAA.
type LightSettings struct {
	Color                  string `json:"color"`
	LightOnDurationMillis  Millis `json:"lightOnDurationMillis"`
	LightOffDurationMillis Millis `json:"lightOffDurationMillis"`
}

// AndroidFCMOptions are FCM features for Android messages.
type AndroidFCMOptions struct {
	AnalyticsLabel string `json:"analyticsLabel,omitempty"`
}
