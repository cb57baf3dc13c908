package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name      string
		ref       string
		wantPath  string
		wantKey   string
		wantMount string
		wantErr   bool
	}{
		{name: "Valid", ref: "secret/balancer/db#password", wantPath: "secret/balancer/db", wantKey: "password", wantMount: "secret"},
		{name: "Missing key", ref: "secret/balancer/db", wantErr: true},
		{name: "Empty key", ref: "secret/balancer/db#", wantErr: true},
		{name: "No mount", ref: "db#password", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, key, err := ParseRef(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, path)
			assert.Equal(t, tt.wantKey, key)
			mount, _ := splitMount(path)
			assert.Equal(t, tt.wantMount, mount)
		})
	}
}
