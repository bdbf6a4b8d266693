// Package messaging contains the public message model of the FCM client:
// what callers build, what a send returns, and the errors it can fail with.
package messaging

import (
	"time"
)

// MaxBatchSize is the most messages (or multicast tokens) a single batch
// send accepts.
const MaxBatchSize = 500

// MaxTopicTokens is the most registration tokens one topic membership call
// accepts.
const MaxTopicTokens = 1000

// Message is a single notification or data message. Exactly one of Token,
// Topic or Condition must be set. Topic may carry an optional "/topics/"
// prefix.
type Message struct {
	Token     string `json:"token,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Condition string `json:"condition,omitempty"`

	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
	FCMOptions   *FCMOptions       `json:"fcmOptions,omitempty"`
}

// Notification is the platform-independent notification shown to the user.
type Notification struct {
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// FCMOptions are platform-independent FCM features.
type FCMOptions struct {
	AnalyticsLabel string `json:"analyticsLabel,omitempty"`
}

// MulticastMessage is one message template fanned out to many tokens.
type MulticastMessage struct {
	Tokens []string `json:"tokens"`

	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
	FCMOptions   *FCMOptions       `json:"fcmOptions,omitempty"`
}

// Messages expands the template into one Message per token, in token order.
// Sub-configurations are shared, not copied; the send path never mutates them.
func (mm *MulticastMessage) Messages() []*Message {
	out := make([]*Message, len(mm.Tokens))
	for i, token := range mm.Tokens {
		out[i] = &Message{
			Token:        token,
			Data:         mm.Data,
			Notification: mm.Notification,
			Android:      mm.Android,
			Webpush:      mm.Webpush,
			APNS:         mm.APNS,
			FCMOptions:   mm.FCMOptions,
		}
	}
	return out
}

// Millis is a duration in milliseconds. Fractional values are allowed and
// are kept down to the nanosecond on the wire.
type Millis float64

// MillisOf converts a time.Duration into Millis.
func MillisOf(d time.Duration) Millis {
	return Millis(float64(d) / float64(time.Millisecond))
}

// TTL is a convenience for AndroidConfig.TTL.
func TTL(d time.Duration) *Millis {
	m := MillisOf(d)
	return &m
}

// Duration converts back into a time.Duration, truncating below a nanosecond.
func (m Millis) Duration() time.Duration {
	return time.Duration(float64(m) * float64(time.Millisecond))
}
