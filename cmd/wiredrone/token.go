package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredrone/internal/auth"
)

func tokenCmd(opts *options) *cobra.Command {
	var (
		client  string
		channel string
		data    string
		ttl     time.Duration
		allow   []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a JWT for authenticate",
		Long: `Mint an HS256 token signed with jwt_secret.

Permissions are given as pattern=actions, where actions is any of "p"
(publish) and "s" (subscribe):

  wiredrone token --client abc --allow 'observable-.*=s' --allow 'chat=ps'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			jwtCfg := cfg.JWT()
			if jwtCfg == nil {
				return errors.New("jwt_secret is not configured")
			}
			if cmd.Flags().Changed("ttl") {
				jwtCfg.TTL = ttl
			}
			if channel == "" {
				channel = cfg.Channel
			}

			claims := auth.Claims{Client: client, Channel: channel}
			if data != "" {
				var v any
				if err := json.Unmarshal([]byte(data), &v); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
				claims.Data = v
			}
			if claims.Permissions, err = parsePermissions(allow); err != nil {
				return err
			}

			token, err := auth.GenerateToken(jwtCfg, claims)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "client id the token is bound to (empty binds none)")
	cmd.Flags().StringVar(&channel, "channel", "", "channel the token is bound to (default from config)")
	cmd.Flags().StringVar(&data, "data", "", "JSON shown to other members as authData")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default token_ttl)")
	cmd.Flags().StringArrayVar(&allow, "allow", nil, "room permission as pattern=actions, repeatable")

	return cmd
}

func parsePermissions(entries []string) (map[string]auth.Permission, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	perms := make(map[string]auth.Permission, len(entries))
	for _, entry := range entries {
		pattern, actions, ok := strings.Cut(entry, "=")
		if !ok || pattern == "" {
			return nil, fmt.Errorf("invalid permission %q: want pattern=actions", entry)
		}
		var p auth.Permission
		for _, a := range actions {
			switch a {
			case 'p':
				p.Publish = true
			case 's':
				p.Subscribe = true
			default:
				return nil, fmt.Errorf("invalid action %q in %q", a, entry)
			}
		}
		perms[pattern] = p
	}
	return perms, nil
}
