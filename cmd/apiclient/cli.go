package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/deploymenttheory/go-api-auth-client/credentials"
	"github.com/deploymenttheory/go-api-auth-client/httpclient"
	"github.com/deploymenttheory/go-api-auth-client/version"
)

// CLI represents command structure
type CLI struct {
	// Config is the path to a .json or .toml client configuration file. Without it the
	// configuration is read from the environment.
	Config string `help:"Path to JSON or TOML configuration file" optional:"true" type:"existingfile" env:"APICLIENT_CONFIG"`

	// BaseURL overrides the configured api base URL
	BaseURL string `help:"API base URL" name:"base-url" env:"APICLIENT_BASE_URL"`

	// TokenURL overrides the configured refresh endpoint
	TokenURL string `help:"Token refresh endpoint" name:"token-url" env:"APICLIENT_TOKEN_URL"`

	// Debug is a debug logging mode flag
	Debug bool `help:"Debug logging" short:"d"`

	// BackgroundRefresh keeps the credentials fresh while the command runs
	BackgroundRefresh bool `help:"Refresh credentials in the background ahead of expiry" name:"background-refresh"`

	Version     VersionCmd     `cmd:"true" help:"Print client version"`
	Users       UsersCmd       `cmd:"true" help:"List users"`
	Posts       PostsCmd       `cmd:"true" help:"List posts"`
	Comments    CommentsCmd    `cmd:"true" help:"List the comments of a post"`
	Secure      SecureCmd      `cmd:"true" help:"Fetch the authenticated secure data"`
	StoreTokens StoreTokensCmd `cmd:"true" name:"store-tokens" help:"Store an access/refresh token pair obtained elsewhere"`
	Logout      LogoutCmd      `cmd:"true" help:"Remove stored credentials"`
}

// app is bound into every command's Run method.
type app struct {
	ctx context.Context
	out io.Writer
	cli *CLI
}

// clientConfig resolves the configuration file or environment, then applies flag overrides.
func (a *app) clientConfig() (*httpclient.ClientConfig, error) {
	var (
		config *httpclient.ClientConfig
		err    error
	)
	if a.cli.Config != "" {
		config, err = httpclient.LoadConfigFromFile(a.cli.Config)
	} else {
		config, err = httpclient.LoadConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if a.cli.BaseURL != "" {
		config.BaseURL = a.cli.BaseURL
	}
	if a.cli.TokenURL != "" {
		config.TokenRefreshURL = a.cli.TokenURL
	}
	if a.cli.Debug {
		config.LogLevel = "LogLevelDebug"
	}
	return config, nil
}

func (a *app) withClient(fn func(*httpclient.Client) error) error {
	config, err := a.clientConfig()
	if err != nil {
		return err
	}
	client, err := httpclient.BuildClient(a.ctx, *config, true)
	if err != nil {
		return err
	}
	defer client.Close()

	if a.cli.BackgroundRefresh {
		client.StartRefreshLoop(a.ctx)
	}
	return fn(client)
}

func (a *app) print(v any) error {
	encoder := json.NewEncoder(a.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// VersionCmd prints the client version.
type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	_, err := fmt.Fprintf(a.out, "%s %s\n", version.GetAppName(), version.GetVersion())
	return err
}

// UsersCmd lists users.
type UsersCmd struct{}

func (c *UsersCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		users, err := httpclient.Send(a.ctx, client, httpclient.GetUsersRequest())
		if err != nil {
			return err
		}
		return a.print(users)
	})
}

// PostsCmd lists posts.
type PostsCmd struct{}

func (c *PostsCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		posts, err := httpclient.Send(a.ctx, client, httpclient.GetPostsRequest())
		if err != nil {
			return err
		}
		return a.print(posts)
	})
}

// CommentsCmd lists the comments of one post.
type CommentsCmd struct {
	PostID int `help:"Post whose comments are listed" name:"post-id" required:"true"`
}

func (c *CommentsCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		comments, err := httpclient.Send(a.ctx, client, httpclient.GetCommentsRequest(c.PostID))
		if err != nil {
			return err
		}
		return a.print(comments)
	})
}

// SecureCmd fetches the authenticated resource, refreshing credentials as needed.
type SecureCmd struct{}

func (c *SecureCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		data, err := httpclient.Send(a.ctx, client, httpclient.GetSecureDataRequest())
		if err != nil {
			return err
		}
		return a.print(data)
	})
}

// StoreTokensCmd persists a token pair obtained out of band.
type StoreTokensCmd struct {
	Access    string        `help:"Access token" required:"true"`
	Refresh   string        `help:"Refresh token" required:"true"`
	ExpiresIn time.Duration `help:"Remaining lifetime of the access token" name:"expires-in" default:"1h"`
}

func (c *StoreTokensCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		bundle := credentials.NewBundle(c.Access, c.Refresh, time.Now().Add(c.ExpiresIn))
		if err := client.StoreCredentials(a.ctx, bundle); err != nil {
			return err
		}
		_, err := fmt.Fprintf(a.out, "credentials stored, access token expires at %s\n", bundle.ExpiresAt.Format(time.RFC3339))
		return err
	})
}

// LogoutCmd removes stored credentials.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(a *app) error {
	return a.withClient(func(client *httpclient.Client) error {
		if err := client.Logout(a.ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintln(a.out, "credentials removed")
		return err
	})
}
