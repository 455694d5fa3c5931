package mongoutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateAndSetDefaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantURI string
		wantErr bool
	}{
		{
			name:    "address without credentials",
			cfg:     Config{Address: []string{"localhost:27017"}, Database: "pmarket"},
			wantURI: "mongodb://localhost:27017/pmarket?authSource=pmarket&maxPoolSize=100",
		},
		{
			name:    "credentials are escaped",
			cfg:     Config{Address: []string{"a:1", "b:2"}, Database: "pm", Username: "root", Password: "p@ss", AuthSource: "admin", MaxPoolSize: 5},
			wantURI: "mongodb://root:p%40ss@a:1,b:2/pm?authSource=admin&maxPoolSize=5",
		},
		{
			name:    "explicit uri kept",
			cfg:     Config{Uri: "mongodb://db:27017", Database: "pm"},
			wantURI: "mongodb://db:27017",
		},
		{name: "missing address", cfg: Config{Database: "pm"}, wantErr: true},
		{name: "missing database", cfg: Config{Address: []string{"x"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.ValidateAndSetDefaults()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURI, cfg.Uri)
			assert.Equal(t, defaultMaxRetry, cfg.MaxRetry)
		})
	}
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("connection refused")))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 18}))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 91}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(cancelled, errors.New("x")))
}
