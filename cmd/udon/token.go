package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/udon-flasher/udon-core/internal/api"
)

const (
	flagSubject = "subject"
	flagTTL     = "ttl"
)

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "issue a bearer token for the HTTP and WebSocket API",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: flagSubject, Aliases: []string{"s"}, Value: "operator", Usage: "token subject"},
		&cli.DurationFlag{Name: flagTTL, Value: api.DefaultTokenTTL, Usage: "token lifetime"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c, true)
		if err != nil {
			return err
		}
		token, err := api.IssueToken(
			cfg.Security.JWT.Secret,
			cfg.Security.JWT.Issuer,
			c.String(flagSubject),
			c.Duration(flagTTL),
		)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		fmt.Fprintln(c.App.Writer, token) //nolint:errcheck // Terminal output
		return nil
	},
}
