package config

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PREDICT_URL", "")
	t.Setenv("PREDICT_TIMEOUT", "")
	t.Setenv("CHANGE_FEED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000/predict", cfg.Predict.URL)
	assert.Equal(t, time.Duration(0), cfg.Predict.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Intake.StatusInterval)
	assert.Equal(t, "postgres", cfg.Engagement.ChangeFeed)
	assert.Equal(t, 30*time.Second, cfg.Engagement.HeartbeatInterval)
	assert.Equal(t, 10*time.Second, cfg.Engagement.CountInterval)
	assert.Equal(t, 6, cfg.Engagement.TestimonialLimit)
	assert.Equal(t, int64(20<<20), cfg.Intake.MaxUploadBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PREDICT_TIMEOUT", "45s")
	t.Setenv("CHANGE_FEED", "Redis")
	t.Setenv("DOCTOR_CHAT_ID", "12345")
	t.Setenv("TESTIMONIAL_LIMIT", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Predict.Timeout)
	assert.Equal(t, "redis", cfg.Engagement.ChangeFeed)
	assert.Equal(t, int64(12345), cfg.Telegram.DoctorChatID)
	assert.Equal(t, 3, cfg.Engagement.TestimonialLimit)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("CHANGE_FEED", "carrier-pigeon")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("CHANGE_FEED", "local")
	t.Setenv("INTAKE_STATUS_INTERVAL", "fast")
	_, err = Load()
	require.Error(t, err)
}

func TestDefaultClientID_PerBinary(t *testing.T) {
	t.Setenv("MQTT_CLIENT_ID", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.MQTT.ClientID)

	server := DefaultClientID("neuro-ai")
	cli := DefaultClientID("neuroctl")
	assert.NotEqual(t, server, cli)
	assert.True(t, strings.HasPrefix(server, "neuro-ai-"))
	assert.True(t, strings.HasPrefix(cli, "neuroctl-"))
	assert.True(t, strings.HasSuffix(cli, fmt.Sprintf("-%d", os.Getpid())))
}
