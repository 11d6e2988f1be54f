package conversation

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from MessageStatus
		to   MessageStatus
		want bool
	}{
		{MessageSending, MessageSent, true},
		{MessageSending, MessageFailed, true},
		{MessageSending, MessageDelivered, true},
		{MessageSending, MessageRead, false},
		{MessageSent, MessageDelivered, true},
		{MessageSent, MessageRead, true},
		{MessageSent, MessageSending, false},
		{MessageSent, MessageFailed, false},
		{MessageDelivered, MessageRead, true},
		{MessageDelivered, MessageSent, false},
		{MessageDelivered, MessageSending, false},
		{MessageRead, MessageDelivered, false},
		{MessageRead, MessageSending, false},
		{MessageRead, MessageFailed, false},
		{MessageFailed, MessageSending, true},
		{MessageFailed, MessageSent, false},
		{MessageSent, MessageSent, false},
		{MessageRead, MessageRead, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
