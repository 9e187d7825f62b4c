package db

import "testing"

func TestConvertToMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"postgres scheme", "postgres://u:p@localhost:5432/strive?sslmode=disable", "pgx5://u:p@localhost:5432/strive?sslmode=disable", false},
		{"postgresql scheme", "postgresql://localhost/strive", "pgx5://localhost/strive", false},
		{"mysql scheme", "mysql://localhost/strive", "", true},
		{"garbage", "://nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := convertToMigrateURL(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("convertToMigrateURL(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
