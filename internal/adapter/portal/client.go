package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Compile-time check: Client implements domain.PortalClient.
var _ domain.PortalClient = (*Client)(nil)

const resultSuccess = "SUCCESS"

// resultStatus is the portal API's uniform response envelope.
type resultStatus struct {
	ResultCode    string `json:"resultCode"`
	ResultMessage string `json:"resultMessage"`
}

// signUpRequest is the payload for the portal's user registration.
type signUpRequest struct {
	UserID            string `json:"userId"`
	UserAuthID        string `json:"userAuthId"`
	ServiceInstanceID string `json:"serviceInstanceId"`
}

// Config holds the portal API connection parameters. ClusterID names the
// control-plane cluster in the portal's user-management paths.
type Config struct {
	BaseURL   string
	ClusterID string
	Username  string
	Password  string
	AdminRole string
}

// Client talks to the portal's internal user-management API. Only the
// admin-existence probe retries: every other call mutates portal state
// and a blind replay could double-register.
type Client struct {
	http     *http.Client
	executor failsafe.Executor[*http.Response]
	cfg      Config
}

// New creates a portal client.
func New(cfg Config) *Client {
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		}).
		Build()

	return &Client{
		http:     &http.Client{Timeout: 30 * time.Second},
		executor: failsafe.With(retry),
		cfg:      cfg,
	}
}

// AdminExists probes whether the portal already holds an admin account.
func (c *Client) AdminExists(ctx context.Context) (bool, error) {
	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := c.newRequest(ctx, http.MethodGet, "/isExistsCpPortalAdmin", nil)
		if err != nil {
			return nil, err
		}
		return c.http.Do(req)
	})
	if err != nil {
		return false, fmt.Errorf("probing portal admin: %w", err)
	}
	defer resp.Body.Close()

	status, err := decodeResult(resp)
	if err != nil {
		return false, fmt.Errorf("probing portal admin: %w", err)
	}
	exists, err := strconv.ParseBool(status.ResultMessage)
	if err != nil {
		return false, fmt.Errorf("parsing portal admin probe %q: %w", status.ResultMessage, err)
	}
	return exists, nil
}

// SignUpUser registers a namespace user on the portal.
func (c *Client) SignUpUser(ctx context.Context, account domain.PortalAccount) error {
	return c.signUp(ctx, "/signUp", account)
}

// SignUpAdmin registers the portal admin. The portal assigns the
// cluster-wide role named in the query string.
func (c *Client) SignUpAdmin(ctx context.Context, account domain.PortalAccount) error {
	return c.signUp(ctx, "/signUp?isAdmin=true&param="+c.cfg.AdminRole, account)
}

func (c *Client) signUp(ctx context.Context, path string, account domain.PortalAccount) error {
	payload, err := json.Marshal(signUpRequest{
		UserID:            account.Username,
		UserAuthID:        account.AccountID,
		ServiceInstanceID: account.InstanceID,
	})
	if err != nil {
		return fmt.Errorf("encoding signup request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("signing up %q: %w", account.Username, err)
	}
	defer resp.Body.Close()

	if _, err := decodeResult(resp); err != nil {
		return fmt.Errorf("signing up %q: %w", account.Username, err)
	}
	return nil
}

// DeleteClusterAdmin removes the portal admin account.
func (c *Client) DeleteClusterAdmin(ctx context.Context) error {
	path := "/clusters/" + c.cfg.ClusterID + "/admin/delete"
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting portal admin: %w", err)
	}
	defer resp.Body.Close()

	if _, err := decodeResult(resp); err != nil {
		return fmt.Errorf("deleting portal admin: %w", err)
	}
	return nil
}

// DeleteNamespaceUsers removes every portal user mapped to the namespace.
func (c *Client) DeleteNamespaceUsers(ctx context.Context, namespace string) error {
	path := "/clusters/" + c.cfg.ClusterID + "/namespaces/" + namespace + "/users"
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting users of %q: %w", namespace, err)
	}
	defer resp.Body.Close()

	if _, err := decodeResult(resp); err != nil {
		return fmt.Errorf("deleting users of %q: %w", namespace, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	return req, nil
}

func decodeResult(resp *http.Response) (resultStatus, error) {
	if resp.StatusCode != http.StatusOK {
		return resultStatus{}, fmt.Errorf("portal returned status %d", resp.StatusCode)
	}

	var status resultStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return resultStatus{}, fmt.Errorf("decoding portal response: %w", err)
	}
	if status.ResultCode != resultSuccess {
		return resultStatus{}, fmt.Errorf("portal reported %q: %s", status.ResultCode, status.ResultMessage)
	}
	return status, nil
}
