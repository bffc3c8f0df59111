package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymunastore/aretenvi/internal/config"
	"github.com/mymunastore/aretenvi/internal/registration"
	"github.com/mymunastore/aretenvi/internal/session"
	"github.com/mymunastore/aretenvi/internal/types"
)

func writeTestConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "db_driver: sqlite\ndb_dsn: " + dbPath + "\nlog_level: error\nidle_timeout: 1h\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testConfig(dbPath string) config.Config {
	cfg := config.Default()
	cfg.DBDSN = dbPath
	return cfg
}

func TestLookupPrintsRegistration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "intake.db")
	storage, err := openStorage(testConfig(dbPath))
	require.NoError(t, err)
	reg, err := storage.sink.Finalize(context.Background(), registration.Submission{
		ConversationID: "conv-1",
		CorrelationKey: "+2349152870616",
		Fields: types.Fields{
			FullName:             "Jane Doe",
			Email:                "jane@x.com",
			Phone:                "+2349152870616",
			ServiceType:          "Recycling Services",
			PropertyType:         "Residential",
			Location:             "12 Aka Road, Uyo",
			PreferredContactTime: "Morning (9AM-12PM)",
		},
	})
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	out, err := runCmd(t, "lookup", reg.ReferenceNumber, "--config", writeTestConfig(t, dbPath))
	require.NoError(t, err)

	var got types.Registration
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, reg.ReferenceNumber, got.ReferenceNumber)
	assert.Equal(t, "Jane Doe", got.Fields.FullName)
	assert.Equal(t, types.RegistrationStatusPending, got.Status)
}

func TestLookupUnknownReference(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "intake.db")
	_, err := runCmd(t, "lookup", "ARET-000000-AAAAA", "--config", writeTestConfig(t, dbPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARET-000000-AAAAA")
}

func TestReapExpiresIdleConversations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "intake.db")
	storage, err := openStorage(testConfig(dbPath))
	require.NoError(t, err)
	_, err = storage.store.Create(context.Background(), "+2349152870616", types.StepCollectName, session.Interaction{
		At: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, storage.Close())

	out, err := runCmd(t, "reap", "--config", writeTestConfig(t, dbPath))
	require.NoError(t, err)
	assert.Contains(t, out, "expired 1 idle conversation(s)")
}

func TestNewLoggerFromConfig(t *testing.T) {
	logger, err := newLoggerFromConfig(loggerConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	_, err = newLoggerFromConfig(loggerConfig{Format: "xml"})
	assert.Error(t, err)
	_, err = newLoggerFromConfig(loggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestWebhookSubscriberName(t *testing.T) {
	assert.Equal(t, "crm.example.com", webhookSubscriberName(0, "https://crm.example.com/hooks/intake"))
	assert.Equal(t, "webhook-3", webhookSubscriberName(2, "not a url"))
}
