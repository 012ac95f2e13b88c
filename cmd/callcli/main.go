// Package main provides the call CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/avatarcall/internal/api/callv1"
	apiconnect "github.com/osa030/avatarcall/internal/api/connect"
	"github.com/osa030/avatarcall/internal/domain/call"
)

var (
	app    = kingpin.New("avatarcall-cli", "AI avatar video call client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token").Envar("CONTROL_TOKEN").String()

	statusCmd = app.Command("status", "Show the call state")
	startCmd  = app.Command("start", "Start a call")
	endCmd    = app.Command("end", "End the active call")
	watchCmd  = app.Command("watch", "Stream call state changes")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := callv1.NewCallServiceClient(http.DefaultClient, *server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case startCmd.FullCommand():
		err = start(ctx, client)
	case endCmd.FullCommand():
		err = end(ctx, client)
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, client callv1.CallServiceClient) error {
	resp, err := client.GetState(ctx, connect.NewRequest(&callv1.GetStateRequest{}))
	if err != nil {
		return err
	}
	printSnapshot(resp.Msg.State)
	return nil
}

func start(ctx context.Context, client callv1.CallServiceClient) error {
	req := connect.NewRequest(&callv1.StartCallRequest{})
	setToken(req.Header())
	resp, err := client.StartCall(ctx, req)
	if err != nil {
		return err
	}
	printSnapshot(resp.Msg.State)
	if resp.Msg.State.Conversation != nil {
		fmt.Printf("Join the call: %s\n", resp.Msg.State.Conversation.URL)
	}
	return nil
}

func end(ctx context.Context, client callv1.CallServiceClient) error {
	req := connect.NewRequest(&callv1.EndCallRequest{})
	setToken(req.Header())
	resp, err := client.EndCall(ctx, req)
	if err != nil {
		return err
	}
	printSnapshot(resp.Msg.State)
	return nil
}

func watch(ctx context.Context, client callv1.CallServiceClient) error {
	stream, err := client.WatchState(ctx, connect.NewRequest(&callv1.WatchStateRequest{}))
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Watching call state. Press Ctrl+C to exit.")

	for stream.Receive() {
		printSnapshot(stream.Msg())
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream error: %w", err)
	}
	return nil
}

func setToken(h http.Header) {
	if *token != "" {
		h.Set(apiconnect.ControlTokenHeader, *token)
	}
}

func formatState(s call.State) string {
	switch s {
	case call.StateDisconnected:
		return "⏹  Disconnected"
	case call.StateConnecting:
		return "⏳ Connecting"
	case call.StateActive:
		return "🔴 Live"
	case call.StateEnded:
		return "🔚 Call ended"
	default:
		return "❓ Unknown"
	}
}

func printSnapshot(s *callv1.CallSnapshot) {
	if s == nil {
		return
	}
	fmt.Printf("\n[Sequence: %d] %s\n", s.SequenceNo, s.UpdatedAt.Format(time.TimeOnly))
	fmt.Printf("  State: %s\n", formatState(s.State))
	if s.Replica != nil {
		fmt.Printf("  Replica: %s (%s)\n", s.Replica.Name, s.Replica.ID)
	}
	if s.Persona != nil {
		fmt.Printf("  Persona: %s (%s)\n", s.Persona.Name, s.Persona.ID)
	}
	if s.Conversation != nil {
		fmt.Printf("  Conversation: %s\n", s.Conversation.ID)
		fmt.Printf("  URL: %s\n", s.Conversation.URL)
	}
	if s.Error != "" {
		fmt.Printf("  Error: %s\n", s.Error)
	}
	fmt.Printf("  Loading: %v  Can start: %v\n", s.Loading, s.CanStart)
}
