// rfidctl is an interactive operator console for rfidhub.
//
// It talks to the hub's HTTP facade. With -discover it first browses the
// local network for hubs advertised over mDNS. Any arguments after the
// flags run as a single command instead of starting the console:
//
//	rfidctl -addr http://hub.local:8080/api/v1 read dock E0040100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nerrad567/rfidhub/internal/discovery"
)

const defaultAddr = "http://localhost:8080/api/v1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rfidctl", flag.ContinueOnError)
	fs.SetOutput(out)
	addr := fs.String("addr", envOr("RFIDHUB_URL", defaultAddr), "hub API base URL")
	timeout := fs.Duration("timeout", 30*time.Second, "per-request timeout")
	discover := fs.Duration("discover", 0, "browse mDNS for this long and use the first hub found")
	service := fs.String("service", "_rfidhub._tcp", "mDNS service type to browse")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base := *addr
	if *discover > 0 {
		found, err := discoverHub(ctx, *service, *discover, out)
		if err != nil {
			return err
		}
		base = found
	}

	console := NewConsole(newHubClient(base, *timeout), out)

	if fs.NArg() > 0 {
		console.Exec(ctx, strings.Join(fs.Args(), " "))
		return nil
	}

	fmt.Fprintf(out, "Connected to %s (type 'help' for commands)\n", base)
	return console.Run(ctx, "rfidhub> ")
}

func discoverHub(ctx context.Context, service string, wait time.Duration, out io.Writer) (string, error) {
	browseCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	hubs, err := discovery.Browse(browseCtx, service, "")
	if err != nil {
		return "", err
	}
	if len(hubs) == 0 {
		return "", errors.New("no hubs found")
	}
	for _, h := range hubs {
		fmt.Fprintf(out, "found %s at %s (%d readers)\n", h.Instance, h.URL(), h.Readers())
	}
	return hubs[0].URL(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
