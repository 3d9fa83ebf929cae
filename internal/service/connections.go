// Package service holds the narrow out-of-core collaborators: service
// connections, credential protection and connection health.
package service

import (
	"context"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"github.com/maxbolgarin/hookflow/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ model.ConnectionStore = (*MemoryConnectionStore)(nil)

// MemoryConnectionStore keeps service connections in process. The relational
// storage it stands in for is out of scope of the pipeline core.
type MemoryConnectionStore struct {
	mu          sync.RWMutex
	connections map[string]*model.ServiceConnection
}

// NewMemoryConnectionStore creates an empty store.
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{connections: make(map[string]*model.ServiceConnection)}
}

func (s *MemoryConnectionStore) CreateConnection(ctx context.Context, conn *model.ServiceConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[conn.ID]; ok {
		return errm.New("connection already exists: " + conn.ID)
	}
	s.connections[conn.ID] = conn
	return nil
}

func (s *MemoryConnectionStore) GetConnection(ctx context.Context, connectionID string) (*model.ServiceConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, errm.New("connection not found: " + connectionID)
	}
	return conn, nil
}

func (s *MemoryConnectionStore) ListConnections(ctx context.Context) ([]*model.ServiceConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ServiceConnection, 0, len(s.connections))
	for _, conn := range s.connections {
		out = append(out, conn)
	}
	return out, nil
}

func (s *MemoryConnectionStore) UpdateConnectionStatus(ctx context.Context, connectionID string, status model.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return errm.New("connection not found: " + connectionID)
	}
	conn.Status = status
	return nil
}

var _ model.InstallationHandler = (*ConnectionManager)(nil)

// ConnectionManager turns installation events into organization and
// service-connection records, protecting any credentials before persistence.
type ConnectionManager struct {
	store  model.ConnectionStore
	cipher model.CredentialCipher
	github *GitHubClient
	log    logze.Logger
}

// NewConnectionManager creates a manager over the given store and cipher.
func NewConnectionManager(store model.ConnectionStore, cipher model.CredentialCipher) *ConnectionManager {
	return &ConnectionManager{
		store:  store,
		cipher: cipher,
		log:    logze.With("module", "connections"),
	}
}

// WithGitHub enables installation lookups through the GitHub API.
func (m *ConnectionManager) WithGitHub(client *GitHubClient) *ConnectionManager {
	m.github = client
	return m
}

// HandleInstallation creates a connection for a "created" installation event.
// Other installation actions are acknowledged without effect.
func (m *ConnectionManager) HandleInstallation(ctx context.Context, event *model.StandardizedEvent) error {
	var payload installationPayload
	if err := json.Unmarshal(event.RawPayload, &payload); err != nil {
		return errm.Wrap(err, "parse installation payload")
	}

	if payload.Action != "created" {
		m.log.Info("ignoring installation event",
			"action", payload.Action,
			"installation_id", payload.Installation.ID,
		)
		return nil
	}
	if payload.Installation.ID == 0 {
		return errm.New("no installation id in payload")
	}

	// An acceptance task that fails after this point replays the event on
	// retry, so creation keys on the installation, not the delivery.
	existing, err := m.store.ListConnections(ctx)
	if err != nil {
		return errm.Wrap(err, "list connections")
	}
	for _, c := range existing {
		if c.Service == event.Service && c.InstallationID == payload.Installation.ID {
			m.log.Info("connection already exists for installation",
				"connection_id", c.ID,
				"installation_id", c.InstallationID,
			)
			return nil
		}
	}

	conn := model.NewServiceConnection(payload.Installation.Account.Login, event.Service)
	conn.InstallationID = payload.Installation.ID
	conn.Status = model.ConnectionActive
	conn.Settings["account_type"] = payload.Installation.Account.Type
	conn.Settings["repository_selection"] = payload.Installation.RepositorySelection
	conn.Settings["repository_count"] = strconv.Itoa(len(payload.Repositories))

	if token := payload.Installation.AccessTokensURL; token != "" && m.cipher != nil {
		encrypted, err := m.cipher.Encrypt(token)
		if err != nil {
			return errm.Wrap(err, "encrypt installation credential")
		}
		conn.EncryptedCredentials = map[string]string{"access_tokens_url": encrypted}
	}

	if m.github != nil {
		if err := m.github.EnrichConnection(ctx, conn); err != nil {
			m.log.Warn("installation lookup failed", "installation_id", conn.InstallationID, "error", err.Error())
		}
	}

	if err := m.store.CreateConnection(ctx, conn); err != nil {
		return errm.Wrap(err, "create service connection")
	}

	m.log.Info("service connection created",
		"connection_id", conn.ID,
		"organization", conn.Organization,
		"installation_id", conn.InstallationID,
	)
	return nil
}

type installationPayload struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
		RepositorySelection string `json:"repository_selection"`
		AccessTokensURL     string `json:"access_tokens_url"`
	} `json:"installation"`
	Repositories []struct {
		FullName string `json:"full_name"`
	} `json:"repositories"`
}
