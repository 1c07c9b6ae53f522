package errors

import "testing"

func TestRetryable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeUnknown, false},
		{CodeValidation, false},
		{CodeNotFound, false},
		{CodeInsufficientQuantity, false},
		{CodeTransient, true},
		{CodeUnsupportedOperation, false},
	}
	for _, tt := range tests {
		if got := tt.code.Retryable(); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
