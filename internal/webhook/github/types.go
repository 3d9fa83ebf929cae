package github

import (
	"strconv"

	"github.com/maxbolgarin/hookflow/internal/model"
)

type githubPayload struct {
	Action  string `json:"action"`
	Comment struct {
		Body string `json:"body"`
	} `json:"comment"`
	PullRequest struct {
		Body string `json:"body"`
	} `json:"pull_request"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		DefaultBranch string `json:"default_branch"`
		UpdatedAt     string `json:"updated_at"`
	} `json:"repository"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Type  string `json:"type"`
		} `json:"account"`
		RepositorySelection string `json:"repository_selection"`
	} `json:"installation"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// repositoryContext is nil when the payload carries no repository, which is
// the case for account-level installation events.
func (p *githubPayload) repositoryContext() *model.RepositoryContext {
	if p.Repository.Name == "" {
		return nil
	}
	return &model.RepositoryContext{
		Name:           p.Repository.Name,
		Owner:          p.Repository.Owner.Login,
		DefaultBranch:  p.Repository.DefaultBranch,
		InstallationID: p.Installation.ID,
		CanWrite:       true, // granted by the app installation
	}
}

func (p *githubPayload) userRequest() string {
	if p.Comment.Body != "" {
		return p.Comment.Body
	}
	return p.PullRequest.Body
}

func (p *githubPayload) metadata() map[string]string {
	md := map[string]string{
		"sender": p.Sender.Login,
		"action": p.Action,
	}
	if p.Repository.UpdatedAt != "" {
		md["event_timestamp"] = p.Repository.UpdatedAt
	}
	if p.Installation.ID != 0 {
		md["installation_id"] = strconv.FormatInt(p.Installation.ID, 10)
		md["account"] = p.Installation.Account.Login
		md["account_type"] = p.Installation.Account.Type
	}
	return md
}
