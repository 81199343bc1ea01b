package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AndrewLester/atomicdate/internal/rpc"
	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
	"github.com/sevlyar/go-daemon"
)

const daemonName = "atomicdated"

var socket = fmt.Sprintf("/var/run/%s.sock", daemonName)

var daemonCtx = &daemon.Context{
	PidFileName: fmt.Sprintf("/var/run/%s.pid", daemonName),
	PidFilePerm: 0644,
	LogFileName: fmt.Sprintf("/var/log/%s.log", daemonName),
	LogFilePerm: 0640,
	WorkDir:     "./",
	Umask:       027,
	Args:        append([]string{daemonName}, os.Args[1:]...),
}

func killDaemon() {
	daemon, err := daemonCtx.Search()
	if err != nil {
		log.Fatalf("Error finding daemon: %v", err)
	}

	err = syscall.Kill(daemon.Pid, syscall.SIGTERM)
	if err != nil {
		log.Fatal("Couldn't stop atomicdate daemon.")
	}
}

// runDaemon keeps a Service synchronized and serves it on the socket until
// SIGINT or SIGTERM.
func runDaemon(config atomicdate.Config, host string, port int, period time.Duration) error {
	service, err := atomicdate.NewService(config)
	if err != nil {
		return err
	}
	defer service.Close()

	if err := service.SetServerHost(host); err != nil {
		return err
	}
	if err := service.SetServerPort(port); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sync right away so clients don't wait a full period for the first offset.
	if err := service.Sync(ctx); err != nil {
		log.Printf("Initial synchronization with %s failed: %v", host, err)
	}
	if err := service.SetSyncPeriod(period); err != nil {
		return err
	}

	server := &rpc.Server{Socket: socket, Service: service}
	if err := server.Listen(); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() {
		served <- server.Serve()
	}()
	log.Println("Serving network time on", socket)

	select {
	case <-ctx.Done():
		log.Println("Shutting down")
		server.Close()
		<-served
		return nil
	case err := <-served:
		return err
	}
}
