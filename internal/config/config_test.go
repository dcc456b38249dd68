package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUCKET_OBJECT_MAX_SIZE", "")
	t.Setenv("COMPRESSION_QUALITY", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("STORAGE_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(5<<20), cfg.MaxObjectBytes)
	assert.Equal(t, float32(80), cfg.CompressionQuality)
	assert.Equal(t, DriverMinio, cfg.StorageDriver)
	assert.Positive(t, cfg.TranscodeConcurrency)
	assert.Equal(t, "localhost:9000", cfg.StorageEndpoint)
}

func TestLoadClampsQuality(t *testing.T) {
	t.Setenv("COMPRESSION_QUALITY", "250")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, float32(100), cfg.CompressionQuality)

	t.Setenv("COMPRESSION_QUALITY", "-3.5")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, float32(0), cfg.CompressionQuality)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"BUCKET_OBJECT_MAX_SIZE": "lots",
		"COMPRESSION_QUALITY":    "high",
		"MEMES_PULL_LIMIT":       "0",
		"STORAGE_DRIVER":         "ftp",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadStorageFlags(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("STORAGE_ENDPOINT", "")
	t.Setenv("STORAGE_PUBLIC_READ", "true")
	t.Setenv("PUBLISH_REQUIRES_AUTH", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverS3, cfg.StorageDriver)
	assert.True(t, cfg.StoragePublicRead)
	assert.False(t, cfg.PublishRequiresAuth)
	assert.Empty(t, cfg.StorageEndpoint)
}

func TestLoadValidatesEndpointPerDriver(t *testing.T) {
	cases := []struct {
		driver, endpoint string
		ok               bool
	}{
		{"minio", "", true}, // default localhost:9000
		{"minio", "minio:9000", true},
		{"minio", "http://minio:9000", false},
		{"s3", "", true},
		{"s3", "https://s3.eu-central-1.amazonaws.com", true},
		{"s3", "http://localhost:9000", true},
		{"s3", "localhost:9000", false},
		{"s3", "ftp://files.example.com", false},
	}
	for _, tc := range cases {
		t.Run(tc.driver+"_"+tc.endpoint, func(t *testing.T) {
			t.Setenv("STORAGE_DRIVER", tc.driver)
			t.Setenv("STORAGE_ENDPOINT", tc.endpoint)
			_, err := Load()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
