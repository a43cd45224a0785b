package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredrone/internal/auth"
	"github.com/vovakirdan/wiredrone/internal/client"
	"github.com/vovakirdan/wiredrone/internal/config"
	"github.com/vovakirdan/wiredrone/internal/core"
	"github.com/vovakirdan/wiredrone/internal/proto"
	"github.com/vovakirdan/wiredrone/internal/transport/ws"
)

func chatCmd(opts *options) *cobra.Command {
	var (
		flags    config.Config
		name     string
		token    string
		selfAuth bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat from the terminal",
		Long: `Connect, subscribe to a room and publish every line read from stdin.

Commands:
  /join <room>    subscribe to another room and make it current
  /leave <room>   unsubscribe from a room
  /members        list members of the current room (observable rooms only)
  /quit           disconnect`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			cfg.UpdateFrom(flags)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := &chatSession{
				cfg:      cfg,
				name:     name,
				token:    token,
				selfAuth: selfAuth,
				out:      cmd.OutOrStdout(),
				log:      logger,
			}
			return s.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&flags.URL, "url", "", "service WebSocket URL")
	cmd.Flags().StringVar(&flags.Channel, "channel", "", "channel id")
	cmd.Flags().StringVar(&flags.Room, "room", "", "room to join first")
	cmd.Flags().StringVar(&name, "name", "", "display name sent as client data")
	cmd.Flags().StringVar(&token, "token", "", "JWT to authenticate with after connecting")
	cmd.Flags().BoolVar(&selfAuth, "self-auth", false, "mint a token with jwt_secret for the assigned client id")

	return cmd
}

type chatSession struct {
	cfg      config.Config
	name     string
	token    string
	selfAuth bool
	out      io.Writer
	log      *zerolog.Logger

	client  *client.Client
	current string
	mu      sync.Mutex
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := ws.New(ws.Config{URL: s.cfg.URL, WriteTimeout: s.cfg.WriteTimeout}, s.log)
	s.client = client.New(client.Config{
		Channel:     s.cfg.Channel,
		ClientData:  s.clientData(),
		CallTimeout: s.cfg.CallTimeout,
	}, tr, client.WithLogger(s.log), client.WithHandlers(client.Handlers{
		OnConnected: func(id string, err error) {
			if err != nil {
				s.printf("handshake failed: %v", err)
				return
			}
			s.printf("connected as %s", id)
			s.authenticate(ctx, id)
		},
		OnAuthenticated: func(err error) {
			if err != nil {
				s.printf("authentication failed: %v", err)
				return
			}
			s.printf("authenticated")
		},
		OnError: func(err error) {
			s.printf("service error: %v", err)
		},
		OnDisconnected: func(err error) {
			if err != nil {
				s.printf("disconnected: %v", err)
			}
			cancel()
		},
	}))

	s.current = s.cfg.Room
	if _, err := s.client.SubscribeWith(ctx, s.current, s.roomHandlers()); err != nil {
		return err
	}
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	defer s.client.Disconnect()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handleLine(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (s *chatSession) handleLine(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/quit":
		return true
	case "/join":
		if arg == "" {
			s.printf("usage: /join <room>")
			return false
		}
		if _, err := s.client.SubscribeWith(ctx, arg, s.roomHandlers()); err != nil {
			s.printf("join %s: %v", arg, err)
			return false
		}
		s.current = arg
	case "/leave":
		if arg == "" {
			arg = s.current
		}
		if err := s.client.Unsubscribe(ctx, arg); err != nil {
			s.printf("leave %s: %v", arg, err)
		}
	case "/members":
		room, ok := s.client.Room(s.current)
		if !ok {
			s.printf("not in a room")
			return false
		}
		for _, m := range room.Members() {
			s.printf("  %s", displayName(&m))
		}
	default:
		if err := s.client.Publish(ctx, s.current, line); err != nil {
			s.printf("publish: %v", err)
		}
	}
	return false
}

func (s *chatSession) roomHandlers() core.RoomHandlers {
	return core.RoomHandlers{
		OnJoined: func(room *core.Room, err error) {
			if err != nil {
				s.printf("[%s] subscribe failed: %v", room.Name(), err)
				return
			}
			s.printf("[%s] joined", room.Name())
		},
		OnMessage: func(room *core.Room, msg proto.Value, from *proto.Member) {
			s.printf("[%s] %s: %s", room.Name(), displayName(from), msg.String())
		},
		OnMembers: func(room *core.Room, members []proto.Member) {
			s.printf("[%s] %d member(s) online", room.Name(), len(members))
		},
		OnMemberJoin: func(room *core.Room, m proto.Member) {
			s.printf("[%s] %s joined", room.Name(), displayName(&m))
		},
		OnMemberLeave: func(room *core.Room, m proto.Member) {
			s.printf("[%s] %s left", room.Name(), displayName(&m))
		},
	}
}

func (s *chatSession) authenticate(ctx context.Context, clientID string) {
	token := s.token
	if token == "" && s.selfAuth {
		jwtCfg := s.cfg.JWT()
		if jwtCfg == nil {
			s.printf("--self-auth needs jwt_secret")
			return
		}
		var err error
		token, err = auth.GenerateToken(jwtCfg, auth.Claims{
			Client:  clientID,
			Channel: s.cfg.Channel,
			Data:    s.clientData(),
		})
		if err != nil {
			s.printf("mint token: %v", err)
			return
		}
	}
	if token == "" {
		return
	}
	if err := s.client.Authenticate(ctx, token); err != nil {
		s.printf("authenticate: %v", err)
	}
}

func (s *chatSession) clientData() any {
	data := make(map[string]any, len(s.cfg.ClientData)+1)
	for k, v := range s.cfg.ClientData {
		data[k] = v
	}
	if s.name != "" {
		data["name"] = s.name
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func (s *chatSession) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format+"\n", args...)
}

// displayName prefers the name in client data and falls back to the id.
func displayName(m *proto.Member) string {
	if m == nil {
		return "service"
	}
	var data struct {
		Name string `json:"name"`
	}
	if err := m.ClientData.Decode(&data); err == nil && data.Name != "" {
		return data.Name
	}
	return m.ID
}
