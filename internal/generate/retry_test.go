package generate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("googleai: rate limit exceeded"), true},
		{"quota", errors.New("Quota Exceeded for project"), true},
		{"http 429", errors.New("unexpected status 429"), true},
		{"http 503", errors.New("503 Service Unavailable"), true},
		{"unavailable", errors.New("model temporarily unavailable"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"bad request", errors.New("invalid request: empty messages"), false},
		{"auth", errors.New("401 unauthorized"), false},
		{"safety block", errors.New("response blocked by safety settings"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Positive(t, cfg.InitialInterval)
	assert.GreaterOrEqual(t, cfg.MaxInterval, cfg.InitialInterval)
}

func TestConfigValidate(t *testing.T) {
	err := Config{}.validate()
	assert.Error(t, err)
}
