package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CommitGraphQuery fetches the parent, author and committer graph for one commit.
const CommitGraphQuery = `query ($owner: String!, $name: String!, $oid: GitObjectID!) {
  repository(owner: $owner, name: $name) {
    object(oid: $oid) {
      ... on Commit {
        oid
        parents(first: 10) {
          nodes {
            oid
          }
        }
        author {
          name
          user {
            login
          }
        }
        committer {
          name
          user {
            login
          }
        }
      }
    }
  }
}`

// ErrUnexpectedStatus is returned when the GraphQL endpoint answers with a non-success status.
var ErrUnexpectedStatus = errors.New("unexpected graphql response status")

// GraphQLError is an explicit error payload returned by the GraphQL endpoint.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql error: " + strings.Join(e.Messages, "; ")
}

// Identity is a git identity with an optional platform login.
type Identity struct {
	Name  string
	Login string
}

// CommitNode is the commit graph data returned by the GraphQL endpoint.
type CommitNode struct {
	OID       string
	Parents   []string
	Author    Identity
	Committer Identity
}

// GraphClient queries the GitHub GraphQL API over the retrying request client.
type GraphClient struct {
	requestClient *Client
}

// NewGraphClient creates a GraphQL client.
func NewGraphClient(requestClient *Client) (*GraphClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	return &GraphClient{requestClient: requestClient}, nil
}

// MaxAttempts reports the request client's attempt ceiling.
func (c *GraphClient) MaxAttempts() int {
	return c.requestClient.MaxAttempts()
}

// CommitNode fetches one commit's graph data. A nil node with a nil error means the
// endpoint answered but holds no such object.
func (c *GraphClient) CommitNode(ctx context.Context, repo RepoRef, oid, token string) (*CommitNode, CallMetadata, error) {
	trimmedOID := strings.TrimSpace(oid)
	if trimmedOID == "" {
		return nil, CallMetadata{}, fmt.Errorf("commit oid is required")
	}
	if repo.Owner == "" || repo.Name == "" {
		return nil, CallMetadata{}, fmt.Errorf("repository owner and name are required")
	}
	if strings.TrimSpace(repo.GraphQLURL) == "" {
		return nil, CallMetadata{}, fmt.Errorf("graphql url is required")
	}

	body, err := json.Marshal(graphQLRequest{
		Query: CommitGraphQuery,
		Variables: map[string]string{
			"owner": repo.Owner,
			"name":  repo.Name,
			"oid":   trimmedOID,
		},
	})
	if err != nil {
		return nil, CallMetadata{}, fmt.Errorf("marshal commit graph query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, repo.GraphQLURL, bytes.NewReader(body))
	if err != nil {
		return nil, CallMetadata{}, fmt.Errorf("build commit graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return nil, metadata, fmt.Errorf("commit graph request failed: %w", err)
	}
	if resp == nil {
		return nil, metadata, fmt.Errorf("commit graph request failed: nil response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		statusErr := fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
		return nil, metadata, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, metadata.Attempts, statusErr)
	}

	var payload commitGraphResponse
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return nil, metadata, fmt.Errorf("decode commit graph response: %w", err)
	}

	if len(payload.Errors) > 0 {
		messages := make([]string, 0, len(payload.Errors))
		for _, graphErr := range payload.Errors {
			messages = append(messages, graphErr.Message)
		}
		return nil, metadata, &GraphQLError{Messages: messages}
	}

	if payload.Data == nil || payload.Data.Repository == nil || payload.Data.Repository.Object == nil {
		return nil, metadata, nil
	}

	object := payload.Data.Repository.Object
	node := &CommitNode{
		OID:     object.OID,
		Parents: make([]string, 0, len(object.Parents.Nodes)),
	}
	for _, parent := range object.Parents.Nodes {
		node.Parents = append(node.Parents, parent.OID)
	}
	if object.Author != nil {
		node.Author = object.Author.identity()
	}
	if object.Committer != nil {
		node.Committer = object.Committer.identity()
	}
	return node, metadata, nil
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type commitGraphResponse struct {
	Data   *commitGraphData `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type commitGraphData struct {
	Repository *struct {
		Object *commitObjectPayload `json:"object"`
	} `json:"repository"`
}

type commitObjectPayload struct {
	OID     string `json:"oid"`
	Parents struct {
		Nodes []struct {
			OID string `json:"oid"`
		} `json:"nodes"`
	} `json:"parents"`
	Author    *gitActorPayload `json:"author"`
	Committer *gitActorPayload `json:"committer"`
}

type gitActorPayload struct {
	Name string       `json:"name"`
	User *userPayload `json:"user"`
}

func (a *gitActorPayload) identity() Identity {
	identity := Identity{Name: a.Name}
	if a.User != nil {
		identity.Login = a.User.Login
	}
	return identity
}

type userPayload struct {
	Login string `json:"login"`
}
