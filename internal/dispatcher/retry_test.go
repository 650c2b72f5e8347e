package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff_Doubling(t *testing.T) {
	strategy := &RetryStrategy{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      false,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 8 * time.Second}, // capped
		{10, 8 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, strategy.CalculateBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCalculateBackoff_JitterStaysWithinBounds(t *testing.T) {
	strategy := &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  8 * time.Second,
		Jitter:      true,
	}

	for i := 0; i < 100; i++ {
		backoff := strategy.CalculateBackoff(2)
		assert.GreaterOrEqual(t, backoff, 1800*time.Millisecond)
		assert.LessOrEqual(t, backoff, 2200*time.Millisecond)
	}
}

func TestNewRetryStrategy_Defaults(t *testing.T) {
	strategy := NewRetryStrategy()
	assert.Equal(t, 3, strategy.MaxAttempts)
	assert.Equal(t, 1*time.Second, strategy.BaseBackoff)
	assert.Equal(t, 8*time.Second, strategy.MaxBackoff)
	assert.True(t, strategy.Jitter)
}

func TestRenderTemplate(t *testing.T) {
	body := RenderTemplate("confirm_extraction", map[string]string{
		"holder_name":         "Jordan Reyes",
		"license_number":      "G-1234567",
		"license_type":        "unarmed",
		"expiration_date":     "2026-11-30",
		"state":               "CA",
		"confirmation_number": "unused",
	})
	assert.Contains(t, body, "Jordan Reyes")
	assert.Contains(t, body, "G-1234567")
	assert.Contains(t, body, "2026-11-30")
	assert.NotContains(t, body, "{license_number}")
}

func TestRenderTemplate_UnknownFallsBackToName(t *testing.T) {
	assert.Equal(t, "no_such_template", RenderTemplate("no_such_template", nil))
}

func TestRenderTemplate_MissingParamsLeavePlaceholders(t *testing.T) {
	body := RenderTemplate("renewal_failed", nil)
	assert.Contains(t, body, "{reason}")
}
