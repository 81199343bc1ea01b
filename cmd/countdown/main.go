package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/AndrewLester/atomicdate/internal/rpc"
	"github.com/AndrewLester/atomicdate/internal/sugar"
	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// clock is where the countdown reads network time from.
type clock interface {
	Now() (time.Time, error)
}

type daemonClock struct {
	client *rpc.Client
}

func (c daemonClock) Now() (time.Time, error) {
	return c.client.Time()
}

func main() {
	var socket string
	var server string
	var target string
	var period time.Duration
	flag.StringVar(&socket, "socket", "", "Read time from the atomicdate daemon on this unix socket.")
	flag.StringVar(&server, "server", "", "SNTP server to synchronize with when no socket is given, host[:port].")
	flag.StringVar(&target, "target", "", "Instant to count down to, RFC 3339. Defaults to the next New Year.")
	flag.DurationVar(&period, "period", time.Minute, "Time between synchronizations when no socket is given.")
	flag.Parse()

	var source clock
	if socket != "" {
		client, err := rpc.Dial(socket)
		if err != nil {
			log.Fatalf("Error connecting to atomicdate daemon: %v", err)
		}
		defer client.Close()
		source = daemonClock{client: client}
	} else {
		service, err := startService(server, period)
		if err != nil {
			log.Fatal(err)
		}
		defer service.Close()
		source = service
	}

	m := countdownModel{
		clock:   source,
		spinner: spinner.New(spinner.WithSpinner(spinner.MiniDot)),
	}
	if target != "" {
		t, err := time.Parse(time.RFC3339, target)
		if err != nil {
			log.Fatalf("Invalid target: %v", err)
		}
		m.target = t
		m.label = t.Format(time.RFC1123)
	}

	if _, err := sugar.RunProgramWithErrors(m, tea.WithAltScreen()); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func startService(server string, period time.Duration) (*atomicdate.Service, error) {
	host, port, err := atomicdate.DefaultServer()
	if server != "" {
		host, port, err = atomicdate.ParseServerAddress(server)
	}
	if err != nil {
		return nil, err
	}

	service, err := atomicdate.NewService(atomicdate.Config{})
	if err != nil {
		return nil, err
	}
	if err := service.SetServerHost(host); err != nil {
		service.Close()
		return nil, err
	}
	if err := service.SetServerPort(port); err != nil {
		service.Close()
		return nil, err
	}

	// The first sync runs in the background so the UI can show its spinner.
	go func() {
		if err := service.Sync(context.Background()); err != nil {
			log.Printf("Error synchronizing with %s: %v", host, err)
		}
	}()
	if err := service.SetSyncPeriod(period); err != nil {
		service.Close()
		return nil, err
	}
	return service, nil
}
