// sessionwatch joins a live session from the terminal and prints questions as
// the instructor launches them. Handy for smoke-testing a hub deployment
// without a browser.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classview-backend/internal/channel"
)

func main() {
	var (
		endpoint  = flag.String("endpoint", channel.EndpointFromEnv(), "hub websocket URL")
		token     = flag.String("token", os.Getenv("CLASSVIEW_TOKEN"), "access token")
		sessionID = flag.String("session", "", "session ID to join")
		studentID = flag.String("student", "", "student ID")
		name      = flag.String("name", "", "student display name")
		email     = flag.String("email", "", "student email")
		silent    = flag.Bool("silent", false, "suppress the terminal bell on new questions")
	)
	flag.Parse()

	if *sessionID == "" || *studentID == "" {
		fmt.Fprintln(os.Stderr, "usage: sessionwatch -session <id> -student <id> [-name ...] [-email ...]")
		os.Exit(2)
	}

	identity := channel.Identity{
		SessionID:    *sessionID,
		StudentID:    *studentID,
		StudentName:  *name,
		StudentEmail: *email,
	}

	opts := channel.Options{
		Endpoint: *endpoint,
		Token:    *token,
		OnQuiz: func(q channel.QuizPayload) {
			fmt.Printf("\n── Question %s ──\n%s\n", q.QuestionID, q.Question)
			for i, opt := range q.Options {
				fmt.Printf("  %d) %s\n", i+1, opt)
			}
			if q.TimeLimit > 0 {
				fmt.Printf("  (%d seconds)\n", q.TimeLimit)
			}
		},
	}
	opts.Cue = channel.TerminalBell
	if *silent {
		opts.Cue = channel.NoCue
	}

	ch := channel.New(identity, opts)

	if err := ch.Connect(context.Background()); err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	defer ch.Disconnect()

	fmt.Printf("Joined session %s as %s. Waiting for questions (Ctrl+C to leave)...\n", *sessionID, *studentID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nLeaving session.")
}
