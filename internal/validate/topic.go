package validate

import (
	"regexp"
	"strings"
)

// TopicPrefix is the form a topic takes on the wire.
const TopicPrefix = "/topics/"

var (
	topicNamePattern       = regexp.MustCompile(`^[a-zA-Z0-9-_.~%]+$`)
	topicManagementPattern = regexp.MustCompile(`^(/topics/)?(private/)?[a-zA-Z0-9-_.~%]+$`)
)

// NormalizeTopic strips a single leading "/topics/" from a send target.
func NormalizeTopic(topic string) string {
	return strings.TrimPrefix(topic, TopicPrefix)
}

// IsTopic reports whether a normalized send topic is well formed.
func IsTopic(name string) bool {
	return topicNamePattern.MatchString(name)
}

// TopicName checks a topic for subscribe and unsubscribe calls and returns
// it in its "/topics/" form.
func TopicName(topic string) (string, bool) {
	if !topicManagementPattern.MatchString(topic) {
		return "", false
	}
	if !strings.HasPrefix(topic, TopicPrefix) {
		topic = TopicPrefix + topic
	}
	return topic, true
}
