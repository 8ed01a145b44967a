package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/immxrtalbeast/meetroom/internal/client"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/peer"
	"github.com/immxrtalbeast/meetroom/internal/relay"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pion/webrtc/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const leaveTimeout = 5 * time.Second

var errSignalingLost = errors.New("signaling connection lost")

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a room and wait for others to join",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSession(cmd.Context(), "")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join an existing room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context(), args[0])
	},
}

// binding is a connected signaling channel plus the room it entered.
type binding struct {
	signaler peer.Signaler
	events   <-chan relay.Event
	state    *client.RoomState
}

func runSession(ctx context.Context, roomID string) error {
	log := setupLogger()

	userID := flagUser
	if userID == "" {
		userID = domain.NewParticipantID(flagName)
	}
	if err := domain.ValidateParticipantID(userID); err != nil {
		return err
	}
	var password *string
	if flagPassword != "" {
		password = &flagPassword
	}

	local, err := peer.OpenFileMedia(flagVideo, flagAudio, log)
	if err != nil {
		return fmt.Errorf("open local media: %w", err)
	}

	rooms, err := client.NewRoomsClient(flagServer, nil)
	if err != nil {
		local.Stop()
		return err
	}
	rooms = rooms.WithToken(flagToken)

	b, err := connect(ctx, rooms, roomID, userID, password, log)
	if err != nil {
		local.Stop()
		return err
	}
	fmt.Printf("in room %s as %s (%d participant(s))\n", b.state.RoomID, userID, b.state.UserCount)

	factory, err := peer.NewPionFactory(flagSTUN)
	if err != nil {
		local.Stop()
		_ = b.signaler.Close()
		return err
	}

	manager, err := peer.NewManager(peer.Config{
		SelfID:   userID,
		Factory:  factory,
		Signaler: b.signaler,
		Retry:    peer.RetryPolicy{Delay: flagRetryDelay, MaxAttempts: flagMaxRetries},
		Handlers: sessionHandlers(log),
		Log:      log,
	})
	if err != nil {
		local.Stop()
		_ = b.signaler.Close()
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	leaving := make(chan struct{})
	quit := make(chan struct{})
	var quitOnce sync.Once
	requestQuit := func() { quitOnce.Do(func() { close(quit) }) }

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		return manager.Run(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case ev, ok := <-b.events:
				if !ok {
					select {
					case <-leaving:
						return nil
					default:
						return errSignalingLost
					}
				}
				if err := manager.HandleEvent(gctx, ev); err != nil && !errors.Is(err, peer.ErrClosed) {
					log.Warn("event rejected", slog.String("event", string(ev.Type)), sl.Err(err))
				}
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
		case <-quit:
		case <-gctx.Done():
			return nil
		}
		close(leaving)
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		return manager.Leave(leaveCtx)
	})

	if err := manager.SetLocalMedia(gctx, local); err != nil {
		requestQuit()
		_ = g.Wait()
		return err
	}

	go readCommands(gctx, os.Stdin, manager, requestQuit, log)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("left room", b.state.RoomID)
	return nil
}

// connect enters the room over the chosen binding. Both bindings listen to
// the room before joining so the join broadcast reaches us too.
func connect(ctx context.Context, rooms *client.RoomsClient, roomID, userID string, password *string, log *slog.Logger) (*binding, error) {
	switch flagBinding {
	case bindingSocket:
		sock, err := client.DialSocket(ctx, flagServer, flagToken, log)
		if err != nil {
			return nil, err
		}
		var state *client.RoomState
		if roomID == "" {
			state, err = sock.CreateRoom(ctx, userID, password)
		} else {
			state, err = sock.JoinRoom(ctx, roomID, userID, password)
		}
		if err != nil {
			_ = sock.Close()
			return nil, err
		}
		return &binding{signaler: sock, events: sock.Events(), state: state}, nil

	case bindingPubSub:
		if roomID == "" {
			state, err := rooms.Create(ctx, userID, password)
			if err != nil {
				return nil, err
			}
			sub, err := client.SubscribeRoom(ctx, rooms, state.RoomID, userID, log)
			if err != nil {
				_, _ = rooms.Leave(ctx, state.RoomID, userID)
				return nil, err
			}
			return &binding{signaler: sub, events: sub.Events(), state: state}, nil
		}

		sub, err := client.SubscribeRoom(ctx, rooms, roomID, userID, log)
		if err != nil {
			return nil, err
		}
		state, err := rooms.Join(ctx, roomID, userID, password)
		if err != nil {
			_ = sub.Close()
			return nil, err
		}
		return &binding{signaler: sub, events: sub.Events(), state: state}, nil

	default:
		return nil, fmt.Errorf("unknown binding %q", flagBinding)
	}
}

func sessionHandlers(log *slog.Logger) peer.Handlers {
	return peer.Handlers{
		OnPeerState: func(remote string, state peer.State) {
			log.Info("peer state", slog.String("remote", remote), slog.String("state", state.String()))
		},
		OnPeerRemoved: func(remote string) {
			log.Debug("peer removed", slog.String("remote", remote))
		},
		OnRemoteTrack: func(remote string, track *webrtc.TrackRemote) {
			log.Info("receiving media",
				slog.String("remote", remote),
				slog.String("kind", track.Kind().String()),
				slog.String("codec", track.Codec().MimeType),
			)
			go drainTrack(track)
		},
		OnMembers: func(count int, members []string) {
			fmt.Printf("participants (%d): %s\n", count, strings.Join(members, ", "))
		},
		OnChat: func(msg relay.ChatMessage) {
			fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), msg.UserID, msg.Message)
		},
		OnScreenShare: func(user string, active bool) {
			if active {
				fmt.Printf("%s started sharing their screen\n", user)
			} else {
				fmt.Printf("%s stopped sharing their screen\n", user)
			}
		},
	}
}

// drainTrack reads incoming RTP so pion keeps delivering RTCP.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func readCommands(ctx context.Context, in io.Reader, manager *peer.Manager, quit func(), log *slog.Logger) {
	var screen *peer.FileMedia
	defer func() {
		if screen != nil {
			screen.Stop()
		}
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		var err error
		switch cmd {
		case "":
			continue
		case "/quit":
			quit()
			return
		case "/peers":
			err = printPeers(ctx, manager)
		case "/share":
			if screen != nil {
				err = errors.New("already sharing")
				break
			}
			screen, err = peer.OpenFileMedia(strings.TrimSpace(arg), "", log)
			if err != nil {
				break
			}
			if err = manager.StartScreenShare(ctx, screen.Tracks()[0]); err != nil {
				screen.Stop()
				screen = nil
			}
		case "/unshare":
			err = manager.StopScreenShare(ctx)
			if screen != nil {
				screen.Stop()
				screen = nil
			}
		default:
			err = manager.SendChat(ctx, line)
		}

		if errors.Is(err, peer.ErrClosed) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	// stdin closed: keep the session until interrupted.
}

func printPeers(ctx context.Context, manager *peer.Manager) error {
	snap, err := manager.Snapshot(ctx)
	if err != nil {
		return err
	}

	remotes := make([]string, 0, len(snap))
	for remote := range snap {
		remotes = append(remotes, remote)
	}
	sort.Strings(remotes)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Peer", "State", "Initiator", "Queued ICE"})
	for _, remote := range remotes {
		info := snap[remote]
		t.AppendRow(table.Row{remote, info.State.String(), yesNo(info.Initiator), info.PendingICE})
	}
	t.Render()
	return nil
}
