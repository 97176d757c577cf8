// Package github is the platform client for check runs and workflow
// dispatch. It authenticates as a GitHub App: short-lived App JWTs are
// exchanged for per-installation access tokens, which are cached and
// refreshed before expiry.
//
// Transport stack per installation:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware)
//  3. installation token injection
package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
)

// Config holds what the client needs to authenticate as a GitHub App.
type Config struct {
	AppID      int64
	PrivateKey *rsa.PrivateKey

	// BaseURL overrides the API endpoint. Empty means api.github.com.
	// Must end with a trailing slash when set.
	BaseURL string

	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// CheckRunOutput is the rendered result shown on a check run.
type CheckRunOutput struct {
	Title   string
	Summary string
	Text    string
}

// CheckRunUpdate carries the fields of an UpdateCheckRun call. Zero-valued
// fields are left unchanged on the platform.
type CheckRunUpdate struct {
	Status     string
	Conclusion string
	Output     *CheckRunOutput
}

// Client calls the platform on behalf of App installations.
type Client struct {
	cfg       Config
	appClient *gh.Client
	tokens    *installationTokens
	retry     retryConfig
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[int64]*gh.Client
}

// New builds a Client from App credentials.
func New(cfg Config) (*Client, error) {
	if cfg.AppID == 0 {
		return nil, fmt.Errorf("app id is zero")
	}
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	minter := &appTokenMinter{appID: cfg.AppID, key: cfg.PrivateKey, now: time.Now}

	c := &Client{
		cfg:     cfg,
		retry:   defaultRetryConfig(),
		logger:  cfg.Logger,
		clients: make(map[int64]*gh.Client),
	}

	appHTTP := &http.Client{
		Transport: &jwtTransport{minter: minter},
		Timeout:   cfg.RequestTimeout,
	}
	appClient, err := c.newGHClient(appHTTP)
	if err != nil {
		return nil, err
	}
	c.appClient = appClient

	c.tokens = newInstallationTokens(minter, func(ctx context.Context, _ string, installationID int64) (*gh.InstallationToken, error) {
		token, _, err := c.appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
		return token, err
	})
	return c, nil
}

// jwtTransport authenticates requests as the App itself, minting a fresh JWT
// per request so expiry never has to be tracked.
type jwtTransport struct {
	minter *appTokenMinter
	base   http.RoundTripper
}

func (t *jwtTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.minter.mint()
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// installationTransport injects the cached installation token, fetching or
// refreshing it as needed.
type installationTransport struct {
	tokens         *installationTokens
	installationID int64
	base           http.RoundTripper
}

func (t *installationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.tokens.get(req.Context(), t.installationID)
	if err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(clone)
}

func (c *Client) newGHClient(httpClient *http.Client) (*gh.Client, error) {
	client := gh.NewClient(httpClient)
	if c.cfg.BaseURL != "" {
		u, err := url.Parse(c.cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// installationClient returns the cached go-github client for an
// installation, building the transport stack on first use.
func (c *Client) installationClient(installationID int64) (*gh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[installationID]; ok {
		return client, nil
	}

	authTransport := &installationTransport{
		tokens:         c.tokens,
		installationID: installationID,
		base:           httpcache.NewMemoryCacheTransport(),
	}
	httpClient := github_ratelimit.NewClient(authTransport)
	httpClient.Timeout = c.cfg.RequestTimeout

	client, err := c.newGHClient(httpClient)
	if err != nil {
		return nil, err
	}
	c.clients[installationID] = client
	return client, nil
}

// call runs a platform operation with retry. An authentication failure drops
// the cached installation token and retries once with a fresh one.
func (c *Client) call(ctx context.Context, installationID int64, operation func(client *gh.Client) error) error {
	client, err := c.installationClient(installationID)
	if err != nil {
		return err
	}

	err = executeWithRetry(ctx, c.retry, func() error { return operation(client) })
	if err == nil || !IsAuthError(err) {
		return err
	}

	c.logger.Warn("installation token rejected, refreshing",
		"installation_id", installationID,
	)
	c.tokens.invalidate(installationID)
	return executeWithRetry(ctx, c.retry, func() error { return operation(client) })
}

// CreateCheckRun creates a queued check run on a repository head commit and
// returns its id. detailsURL is optional.
func (c *Client) CreateCheckRun(ctx context.Context, installationID int64, repoFullName, name, headSHA, detailsURL string) (int64, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return 0, err
	}

	opts := gh.CreateCheckRunOptions{
		Name:    name,
		HeadSHA: headSHA,
		Status:  gh.Ptr("queued"),
	}
	if detailsURL != "" {
		opts.DetailsURL = gh.Ptr(detailsURL)
	}

	var checkRunID int64
	err = c.call(ctx, installationID, func(client *gh.Client) error {
		checkRun, _, err := client.Checks.CreateCheckRun(ctx, owner, repo, opts)
		if err != nil {
			return err
		}
		checkRunID = checkRun.GetID()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create check run on %s: %w", repoFullName, err)
	}
	return checkRunID, nil
}

// UpdateCheckRun patches an existing check run.
func (c *Client) UpdateCheckRun(ctx context.Context, installationID int64, repoFullName string, checkRunID int64, upd CheckRunUpdate) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	opts := gh.UpdateCheckRunOptions{}
	if upd.Status != "" {
		opts.Status = gh.Ptr(upd.Status)
	}
	if upd.Conclusion != "" {
		opts.Conclusion = gh.Ptr(upd.Conclusion)
	}
	if upd.Output != nil {
		opts.Output = &gh.CheckRunOutput{
			Title:   gh.Ptr(upd.Output.Title),
			Summary: gh.Ptr(upd.Output.Summary),
		}
		if upd.Output.Text != "" {
			opts.Output.Text = gh.Ptr(upd.Output.Text)
		}
	}

	err = c.call(ctx, installationID, func(client *gh.Client) error {
		_, _, err := client.Checks.UpdateCheckRun(ctx, owner, repo, checkRunID, opts)
		return err
	})
	if err != nil {
		return fmt.Errorf("update check run %d on %s: %w", checkRunID, repoFullName, err)
	}
	return nil
}

// DispatchWorkflow triggers a workflow file on a ref with the given inputs.
func (c *Client) DispatchWorkflow(ctx context.Context, installationID int64, repoFullName, workflowFile, ref string, inputs map[string]interface{}) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	err = c.call(ctx, installationID, func(client *gh.Client) error {
		_, err := client.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, repo, workflowFile, gh.CreateWorkflowDispatchEventRequest{
			Ref:    ref,
			Inputs: inputs,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("dispatch %s on %s@%s: %w", workflowFile, repoFullName, ref, err)
	}
	return nil
}

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository name %q", fullName)
	}
	return parts[0], parts[1], nil
}
