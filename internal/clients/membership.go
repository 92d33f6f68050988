package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrGroupNotFound indicates the group does not exist upstream.
var ErrGroupNotFound = errors.New("group not found")

// ErrUpstreamUnavailable indicates the membership service could not answer.
var ErrUpstreamUnavailable = errors.New("membership service unavailable")

// MembershipService answers group existence and membership questions.
// Backed by the groups REST API; decisions are never cached here because
// membership can change between connections.
type MembershipService interface {
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	GroupExists(ctx context.Context, groupID int) (bool, error)
}

// MembershipClient is an HTTP implementation of MembershipService.
type MembershipClient struct {
	baseURL string
	client  *http.Client
}

// NewMembershipClient constructs a client with a bounded per-call timeout.
func NewMembershipClient(baseURL string, timeout time.Duration) *MembershipClient {
	return &MembershipClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsMember asks the groups service whether the user belongs to the group.
func (c *MembershipClient) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	url := fmt.Sprintf("%s/internal/groups/%d/members/%d", c.baseURL, groupID, userID)

	var resp struct {
		Member bool `json:"member"`
	}
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return false, err
	}
	return resp.Member, nil
}

// GroupExists asks the groups service whether the group exists at all.
func (c *MembershipClient) GroupExists(ctx context.Context, groupID int) (bool, error) {
	url := fmt.Sprintf("%s/internal/groups/%d", c.baseURL, groupID)

	var resp struct {
		ID int `json:"id"`
	}
	err := c.getJSON(ctx, url, &resp)
	if errors.Is(err, ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *MembershipClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return ErrGroupNotFound
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}
