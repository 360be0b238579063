package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRetry(t *testing.T) {
	errDown := errors.New("connection refused")

	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantErr   error
		wantCalls int
	}{
		{"first try", 0, 3, nil, 1},
		{"recovers", 2, 3, nil, 3},
		{"gives up", 5, 3, errDown, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retry(context.Background(), zerolog.Nop(), "test", tt.attempts, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errDown
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, zerolog.Nop(), "test", 10, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
