package origin

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 429, URL: "u"})
	if !errors.Is(err, ErrRateLimited) {
		t.Error("429 should match ErrRateLimited")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("429 should not match ErrNotFound")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&StatusError{StatusCode: 404}, false},
		{ErrMalformedInput, false},
		{&StatusError{StatusCode: 429}, true},
		{ErrTransport, true},
		{&StatusError{StatusCode: 503}, true},
	}
	for _, tc := range tests {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestMessage(t *testing.T) {
	if got := Message(&StatusError{StatusCode: 404}); got != "Book content not found." {
		t.Errorf("Message(404) = %q", got)
	}
	if got := Message(errors.New("boom")); got != "boom" {
		t.Errorf("Message(other) = %q", got)
	}
}
