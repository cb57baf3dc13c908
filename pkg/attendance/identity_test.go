package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"conference-balancer/pkg/bbb"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name     string
		attendee bbb.Attendee
		want     Identity
	}{
		{
			name:     "Internal user",
			attendee: bbb.Attendee{UserID: "1_42", FullName: "Ada Lovelace"},
			want:     Identity{Kind: KindUser, UserRef: "42", UserID: 42},
		},
		{
			name:     "Foreign prefix",
			attendee: bbb.Attendee{UserID: "w_3fkdz1", FullName: "Guest"},
			want:     Identity{Kind: KindUnrecognized, Prefix: "w"},
		},
		{
			name:     "Guest without prefix",
			attendee: bbb.Attendee{UserID: "abc123", FullName: "Marie Curie"},
			want:     Identity{Kind: KindGuest, Name: "Marie Curie", SessionID: "abc123"},
		},
		{
			name:     "Unknown prefix",
			attendee: bbb.Attendee{UserID: "2_7", FullName: "Bob"},
			want:     Identity{Kind: KindUnrecognized, Prefix: "2"},
		},
		{
			name:     "Non numeric user id",
			attendee: bbb.Attendee{UserID: "1_abc", FullName: "Eve"},
			want:     Identity{Kind: KindUser, UserRef: "abc"},
		},
		{
			name:     "Empty identifier",
			attendee: bbb.Attendee{UserID: "  ", FullName: "Nobody"},
			want:     Identity{Kind: KindUnrecognized},
		},
		{
			name:     "Value keeps later separators",
			attendee: bbb.Attendee{UserID: "1_5_x"},
			want:     Identity{Kind: KindUser, UserRef: "5_x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIdentity(tt.attendee))
		})
	}
}
