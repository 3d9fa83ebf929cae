package service

import (
	"context"
	"strconv"

	"github.com/google/go-github/v57/github"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/logze/v2"
	"golang.org/x/oauth2"

	"github.com/maxbolgarin/hookflow/internal/model"
)

// GitHubClient looks up installation details through the GitHub API.
type GitHubClient struct {
	client *github.Client
	log    logze.Logger
}

// NewGitHubClient creates an API client authenticated with the given token.
func NewGitHubClient(ctx context.Context, token string) (*GitHubClient, error) {
	if token == "" {
		return nil, errm.New("github token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	return &GitHubClient{
		client: github.NewClient(tc),
		log:    logze.With("module", "github"),
	}, nil
}

// EnrichConnection fills connection settings from the live installation record.
func (c *GitHubClient) EnrichConnection(ctx context.Context, conn *model.ServiceConnection) error {
	if conn.InstallationID == 0 {
		return errm.New("connection has no installation id")
	}

	installation, _, err := c.client.Apps.GetInstallation(ctx, conn.InstallationID)
	if err != nil {
		return errm.Wrap(err, "get installation")
	}

	if installation.SuspendedAt != nil {
		conn.Status = model.ConnectionInactive
	}
	conn.Settings["app_id"] = strconv.FormatInt(installation.GetAppID(), 10)
	conn.Settings["target_type"] = installation.GetTargetType()

	c.log.Debug("connection enriched from installation",
		"connection_id", conn.ID,
		"installation_id", conn.InstallationID,
	)
	return nil
}
