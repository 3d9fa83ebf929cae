package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxbolgarin/hookflow/internal/model"
)

func installationEvent(t *testing.T, payload string) *model.StandardizedEvent {
	t.Helper()
	return &model.StandardizedEvent{
		EventID:    "d-1",
		Service:    model.ServiceGitHub,
		EventType:  "installation",
		RawPayload: []byte(payload),
	}
}

func TestConnectionManager_CreatesConnection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	cipher, err := NewAESCipher("secret")
	require.NoError(t, err)
	m := NewConnectionManager(store, cipher)

	event := installationEvent(t, `{
		"action": "created",
		"installation": {
			"id": 42,
			"account": {"id": 7, "login": "acme", "type": "Organization"},
			"repository_selection": "all",
			"access_tokens_url": "https://api.github.com/app/installations/42/access_tokens"
		},
		"repositories": [{"full_name": "acme/one"}, {"full_name": "acme/two"}]
	}`)

	require.NoError(t, m.HandleInstallation(ctx, event))

	connections, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, connections, 1)

	conn := connections[0]
	assert.Equal(t, "acme", conn.Organization)
	assert.Equal(t, model.ServiceGitHub, conn.Service)
	assert.Equal(t, model.ConnectionActive, conn.Status)
	assert.EqualValues(t, 42, conn.InstallationID)
	assert.Equal(t, "2", conn.Settings["repository_count"])

	// Credentials are never stored in the clear.
	encrypted := conn.EncryptedCredentials["access_tokens_url"]
	require.NotEmpty(t, encrypted)
	assert.NotContains(t, encrypted, "api.github.com")

	decrypted, err := cipher.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Contains(t, decrypted, "api.github.com")
}

func TestConnectionManager_ReplayedInstallationCreatesOneConnection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	m := NewConnectionManager(store, nil)

	event := installationEvent(t, `{
		"action": "created",
		"installation": {"id": 42, "account": {"login": "acme", "type": "Organization"}}
	}`)

	// A retried acceptance task replays the same event.
	require.NoError(t, m.HandleInstallation(ctx, event))
	require.NoError(t, m.HandleInstallation(ctx, event))

	connections, err := store.ListConnections(ctx)
	require.NoError(t, err)
	assert.Len(t, connections, 1)
}

func TestConnectionManager_IgnoresOtherActions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()
	m := NewConnectionManager(store, nil)

	event := installationEvent(t, `{"action":"deleted","installation":{"id":42}}`)
	require.NoError(t, m.HandleInstallation(ctx, event))

	connections, err := store.ListConnections(ctx)
	require.NoError(t, err)
	assert.Empty(t, connections)
}

func TestConnectionManager_RejectsMissingID(t *testing.T) {
	m := NewConnectionManager(NewMemoryConnectionStore(), nil)
	event := installationEvent(t, `{"action":"created","installation":{}}`)
	assert.Error(t, m.HandleInstallation(context.Background(), event))
}

func TestMemoryConnectionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryConnectionStore()

	conn := model.NewServiceConnection("acme", model.ServiceGitHub)
	require.NoError(t, store.CreateConnection(ctx, conn))
	assert.Error(t, store.CreateConnection(ctx, conn), "duplicate id must fail")

	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionPending, got.Status)

	require.NoError(t, store.UpdateConnectionStatus(ctx, conn.ID, model.ConnectionError))
	got, err = store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionError, got.Status)

	_, err = store.GetConnection(ctx, "missing")
	assert.Error(t, err)
	assert.Error(t, store.UpdateConnectionStatus(ctx, "missing", model.ConnectionActive))
}

func TestCommandDispatcher(t *testing.T) {
	d := NewCommandDispatcher()
	ctx := context.Background()

	event := &model.StandardizedEvent{EventType: "issue_comment"}
	assert.NoError(t, d.Dispatch(ctx, "p-1", event))

	event.EventType = "star"
	assert.Error(t, d.Dispatch(ctx, "p-1", event))
}
