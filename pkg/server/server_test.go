package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store/memstore"
)

func TestParseServerLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantName     string
		wantBaseURL  string
		wantStrength int
		wantErr      bool
	}{
		{
			name:         "Default strength",
			line:         "https://bbb1.example.org/bigbluebutton/ s3cr3t",
			wantName:     "bbb1.example.org",
			wantBaseURL:  "https://bbb1.example.org/bigbluebutton",
			wantStrength: 1,
		},
		{
			name:         "Explicit strength",
			line:         "https://bbb2.example.org:8443/bigbluebutton s3cr3t 4",
			wantName:     "bbb2.example.org:8443",
			wantBaseURL:  "https://bbb2.example.org:8443/bigbluebutton",
			wantStrength: 4,
		},
		{name: "Missing secret", line: "https://bbb1.example.org/bigbluebutton", wantErr: true},
		{name: "Too many fields", line: "https://bbb1.example.org s3cr3t 1 extra", wantErr: true},
		{name: "Bad scheme", line: "ftp://bbb1.example.org s3cr3t", wantErr: true},
		{name: "No host", line: "https:///bigbluebutton s3cr3t", wantErr: true},
		{name: "Zero strength", line: "https://bbb1.example.org s3cr3t 0", wantErr: true},
		{name: "Non numeric strength", line: "https://bbb1.example.org s3cr3t big", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServerLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseServerLine() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if got.Name != tt.wantName {
				t.Errorf("parseServerLine() Name = %v, want %v", got.Name, tt.wantName)
			}
			if got.BaseURL != tt.wantBaseURL {
				t.Errorf("parseServerLine() BaseURL = %v, want %v", got.BaseURL, tt.wantBaseURL)
			}
			if got.Strength != tt.wantStrength {
				t.Errorf("parseServerLine() Strength = %v, want %v", got.Strength, tt.wantStrength)
			}
			if got.Status != models.StatusOffline {
				t.Errorf("parseServerLine() Status = %v, want offline", got.Status)
			}
		})
	}
}

func TestAddServersFromFile(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	pool := st.AddPool("default")

	content := `# production servers
https://bbb1.example.org/bigbluebutton s3cr3t 2

not-a-server
https://bbb2.example.org/bigbluebutton other
https://bbb1.example.org/bigbluebutton rotated 3
`
	filename := filepath.Join(t.TempDir(), "servers.txt")
	if err := os.WriteFile(filename, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	added, err := AddServersFromFile(ctx, st, zap.NewNop().Sugar(), filename, "default")
	if err != nil {
		t.Fatalf("AddServersFromFile() error = %v", err)
	}
	if added != 3 {
		t.Errorf("AddServersFromFile() added = %d, want 3", added)
	}

	servers, err := st.GetPoolServers(ctx, pool.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 2 {
		t.Fatalf("pool has %d servers, want 2", len(servers))
	}
	if servers[0].Secret != "rotated" || servers[0].Strength != 3 {
		t.Errorf("first server = %+v, want rotated secret and strength 3", servers[0])
	}
}

func TestAddServersFromFileUnknownPool(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "servers.txt")
	if err := os.WriteFile(filename, []byte("https://bbb1.example.org s3cr3t\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := AddServersFromFile(context.Background(), memstore.New(), zap.NewNop().Sugar(), filename, "missing")
	if err == nil {
		t.Error("AddServersFromFile() expected error for unknown pool")
	}
}
