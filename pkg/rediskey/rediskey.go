package rediskey

import "fmt"

// Key prefixes (global convention across the service)
const (
	RateLimitPrefix = "ratelimit"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "ratelimit:{subject}:{window}".
func BuildRateLimitKey(subject string, window int64) string {
	return NamespaceKey(RateLimitPrefix, fmt.Sprintf("%s:%d", subject, window))
}
