package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
	"github.com/sevlyar/go-daemon"
)

const defaultSyncPeriod = 10 * time.Minute

func main() {
	var query string
	var compare bool
	var server string
	var period time.Duration
	var timeout time.Duration
	var noDaemon bool
	var ui bool
	flag.StringVar(&query, "query", "", "Address to query.")
	flag.StringVar(&query, "q", query, "Address to query.")
	flag.BoolVar(&compare, "compare", false, "Also query the address with beevik/ntp.")
	flag.StringVar(&server, "server", "", "SNTP server for the daemon, host[:port]. Defaults to $"+atomicdate.ServerAddressEnv+".")
	flag.DurationVar(&period, "period", defaultSyncPeriod, "Time between synchronizations, 0 to sync only once.")
	flag.DurationVar(&timeout, "timeout", atomicdate.DefaultTimeout, "How long to wait for a server response.")
	flag.StringVar(&socket, "socket", socket, "Path to the daemon's unix socket.")
	flag.BoolVar(&noDaemon, "no-daemon", false, "Don't run atomicdate as a daemon.")
	flag.BoolVar(&ui, "ui", false, "Show the status of a running daemon.")
	flag.Parse()

	config := atomicdate.Config{
		LocalAddress: localAddress(),
		Timeout:      timeout,
	}

	if query != "" {
		handleQueryCommand(config, query, compare)
		return
	}
	if ui {
		handleStatusUI(socket)
		return
	}

	host, port, err := serverAddress(server)
	if err != nil {
		log.Fatal(err)
	}

	if !noDaemon {
		d, err := daemonCtx.Reborn()
		if err != nil {
			if errors.Is(err, daemon.ErrWouldBlock) {
				killDaemon()
				fmt.Println("Successfully stopped atomicdate daemon.")
				return
			}
			log.Fatal("Unable to run: ", err)
		}
		if d != nil {
			fmt.Printf("Daemon process (%s, %d) started successfully.\n", daemonName, d.Pid)
			return
		}
		defer daemonCtx.Release()

		log.Print("- - - - - - - - - - - - - - -")
		log.Print("daemon started", os.Args)
	}

	if err := runDaemon(config, host, port, period); err != nil {
		log.Fatal(err)
	}
}

// localAddress is the address the client socket binds to. Unset NTP_HOST and
// NTP_PORT let the system choose.
func localAddress() string {
	host := os.Getenv("NTP_HOST")
	port := os.Getenv("NTP_PORT")
	if host == "" && port == "" {
		return ""
	}
	if host == "" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = "0"
	}
	return net.JoinHostPort(host, port)
}

func serverAddress(flagValue string) (string, int, error) {
	if flagValue == "" {
		return atomicdate.DefaultServer()
	}
	return atomicdate.ParseServerAddress(flagValue)
}
