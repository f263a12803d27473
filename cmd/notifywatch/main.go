// Command notifywatch logs in to a POS server and follows the staff
// notification stream, printing the inbox as it changes. Type "r" and Enter
// to reconnect after the stream goes offline, "d" to dismiss the warning.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"possale/internal/logging"
	"possale/internal/notify"
)

func main() {
	baseURL := flag.String("url", "http://localhost:9000", "POS server base URL")
	username := flag.String("user", "", "Username")
	attempts := flag.Int("attempts", notify.DefaultMaxAttempts, "Connection attempts before going offline")
	retry := flag.Duration("retry", notify.DefaultRetryDelay, "Delay between connection attempts")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	_ = godotenv.Load()
	password := os.Getenv("POS_PASSWORD")
	if *username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: notifywatch -user NAME (password in POS_PASSWORD)")
		os.Exit(2)
	}
	log := logging.New(*logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := &notify.API{BaseURL: *baseURL}
	if err := api.Login(ctx, *username, password); err != nil {
		log.WithError(err).Fatal("login failed")
	}

	m := notify.NewManager(notify.Options{
		URL:         api.StreamURL(),
		Token:       api.StreamToken,
		Fetcher:     api,
		MaxAttempts: *attempts,
		RetryDelay:  *retry,
		Logger:      log,
	})
	m.Start(ctx)
	defer m.Close()

	commands := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			commands <- strings.TrimSpace(sc.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Changes():
			render(m.Status(), m.Inbox())
		case cmd := <-commands:
			switch cmd {
			case "r":
				if !m.Reconnect(ctx) {
					fmt.Println("already connected")
				}
			case "d":
				m.Dismiss()
			}
		}
	}
}

func render(st notify.Status, in notify.Inbox) {
	fmt.Printf("[%s] %s  unread=%d total=%d\n", time.Now().Format("15:04:05"), st.State, in.Unread(), in.Len())
	if st.Offline && !st.Dismissed {
		fmt.Printf("  offline after %d attempts (%s); type r to reconnect, d to dismiss\n", st.Attempts, st.LastError)
	}
	for _, n := range in.Items() {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Printf("  %s #%d %-9s %s: %s\n", mark, n.ID, n.Type, n.Title, n.Message)
	}
}
