package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Nerzal/gocloak/v13"

	"github.com/K-PaaS/cp-portal-service-broker/internal/domain"
)

// Compile-time check: Client implements domain.IdentityClient.
var _ domain.IdentityClient = (*Client)(nil)

// roleAttribute is the user attribute carrying the dashboard role.
const roleAttribute = "dashboard-role"

// Config holds the identity provider connection parameters. Admin
// credentials live in their own realm; accounts are managed in Realm.
type Config struct {
	BaseURL       string
	Realm         string
	AdminRealm    string
	AdminUser     string
	AdminPassword string
}

// Client manages federated accounts in a Keycloak realm. Every call
// obtains a fresh admin token; the broker's call volume is far too low
// to justify token caching.
type Client struct {
	gc  *gocloak.GoCloak
	cfg Config
}

// New creates a Keycloak-backed identity client.
func New(cfg Config) *Client {
	return &Client{gc: gocloak.NewClient(cfg.BaseURL), cfg: cfg}
}

func (c *Client) login(ctx context.Context) (string, error) {
	token, err := c.gc.LoginAdmin(ctx, c.cfg.AdminUser, c.cfg.AdminPassword, c.cfg.AdminRealm)
	if err != nil {
		return "", fmt.Errorf("logging in as admin: %w", err)
	}
	return token.AccessToken, nil
}

// CreateAccount registers a new account carrying the given dashboard
// role. An account that already exists is reported as such, never as an
// error: the caller decides whether to reuse it.
func (c *Client) CreateAccount(ctx context.Context, username, role string) (domain.AccountStatus, error) {
	token, err := c.login(ctx)
	if err != nil {
		return domain.AccountStatus{}, err
	}

	user := gocloak.User{
		Username: gocloak.StringP(username),
		Email:    gocloak.StringP(username),
		Enabled:  gocloak.BoolP(true),
		Attributes: &map[string][]string{
			roleAttribute: {role},
		},
	}

	id, err := c.gc.CreateUser(ctx, token, c.cfg.Realm, user)
	if isConflict(err) {
		return domain.AccountStatus{Result: domain.AccountExists}, nil
	}
	if err != nil {
		return domain.AccountStatus{}, fmt.Errorf("creating account %q: %w", username, err)
	}

	return domain.AccountStatus{Result: domain.AccountCreated, AccountID: id}, nil
}

func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}
	if err := c.gc.DeleteUser(ctx, token, c.cfg.Realm, accountID); err != nil {
		return fmt.Errorf("deleting account %q: %w", accountID, err)
	}
	return nil
}

// AccountID looks up the account id for an exact username match.
func (c *Client) AccountID(ctx context.Context, username string) (string, error) {
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}

	users, err := c.gc.GetUsers(ctx, token, c.cfg.Realm, gocloak.GetUsersParams{
		Username: gocloak.StringP(username),
		Exact:    gocloak.BoolP(true),
	})
	if err != nil {
		return "", fmt.Errorf("looking up account %q: %w", username, err)
	}
	if len(users) == 0 || users[0].ID == nil {
		return "", fmt.Errorf("account %q not found", username)
	}
	return *users[0].ID, nil
}

func (c *Client) JoinGroup(ctx context.Context, accountID, group string) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}

	groupID, err := c.groupID(ctx, token, group)
	if err != nil {
		return err
	}
	if err := c.gc.AddUserToGroup(ctx, token, c.cfg.Realm, accountID, groupID); err != nil {
		return fmt.Errorf("adding account %q to group %q: %w", accountID, group, err)
	}
	return nil
}

func (c *Client) LeaveGroup(ctx context.Context, accountID, group string) error {
	token, err := c.login(ctx)
	if err != nil {
		return err
	}

	groupID, err := c.groupID(ctx, token, group)
	if err != nil {
		return err
	}
	if err := c.gc.DeleteUserFromGroup(ctx, token, c.cfg.Realm, accountID, groupID); err != nil {
		return fmt.Errorf("removing account %q from group %q: %w", accountID, group, err)
	}
	return nil
}

func (c *Client) groupID(ctx context.Context, token, group string) (string, error) {
	groups, err := c.gc.GetGroups(ctx, token, c.cfg.Realm, gocloak.GetGroupsParams{
		Search: gocloak.StringP(group),
	})
	if err != nil {
		return "", fmt.Errorf("looking up group %q: %w", group, err)
	}
	for _, g := range groups {
		if g.Name != nil && *g.Name == group && g.ID != nil {
			return *g.ID, nil
		}
	}
	return "", fmt.Errorf("group %q not found", group)
}

func isConflict(err error) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}
