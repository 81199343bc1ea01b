package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/AndrewLester/atomicdate/internal/sugar"
	"github.com/AndrewLester/atomicdate/internal/ui"
	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
	"github.com/beevik/ntp"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func handleQueryCommand(config atomicdate.Config, address string, compare bool) {
	m := queryCommandModel{
		config:  config,
		address: address,
		compare: compare,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	if _, err := sugar.RunProgramWithErrors(m); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type queryCommandModel struct {
	config  atomicdate.Config
	address string
	compare bool
	spinner spinner.Model

	result string
	err    error
}

type queryResultMessage string
type queryErrorMessage struct{ err error }

func queryCommand(config atomicdate.Config, address string, compare bool) tea.Cmd {
	return func() tea.Msg {
		host, port, err := atomicdate.ParseServerAddress(address)
		if err != nil {
			return queryErrorMessage{err}
		}

		client, err := atomicdate.NewClientWithConfig(config)
		if err != nil {
			return queryErrorMessage{err}
		}
		defer client.Close()

		result, err := client.Query(context.Background(), host, port)
		if err != nil {
			return queryErrorMessage{err}
		}

		ip := ""
		if addr, err := net.ResolveIPAddr("ip", host); err == nil {
			ip = addr.String()
		}
		line := formatResult(result.Offset, result.Delay, host, ip)

		if compare {
			hostPort := net.JoinHostPort(host, strconv.Itoa(port))
			response, err := ntp.QueryWithOptions(hostPort, ntp.QueryOptions{Timeout: client.Timeout()})
			if err != nil {
				return queryErrorMessage{fmt.Errorf("beevik/ntp: %w", err)}
			}
			line += "\n" + formatResult(response.ClockOffset.Milliseconds(), response.RTT.Milliseconds(), host+" (beevik/ntp)", ip)
		}
		return queryResultMessage(line)
	}
}

// formatResult renders offset and delay, given in milliseconds, as seconds.
func formatResult(offset, delay int64, host, ip string) string {
	offsetString := strconv.FormatFloat(float64(offset)/1e3, 'G', 5, 64)
	if offset > 0 {
		offsetString = "+" + offsetString
	}
	delayString := strconv.FormatFloat(float64(delay)/1e3, 'G', 5, 64)

	s := fmt.Sprint(offsetString, " +/- ", delayString, " ", host)
	if ip != "" && ip != host {
		s += " " + ip
	}
	return s
}

func (m queryCommandModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, queryCommand(m.config, m.address, m.compare))
}

func (m queryCommandModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case queryResultMessage:
		m.result = string(msg)
		return m, tea.Quit
	case queryErrorMessage:
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m queryCommandModel) View() (s string) {
	if m.err != nil {
		return
	}

	if m.result == "" {
		s += ui.Title("atomicdate - Query") + "\n\n"
		s += m.spinner.View() + " Asking " + m.address + " for the time (timeout " + timeoutString(m.config.Timeout) + ")\n\n"
		s += ui.Help("q: exit") + "\n"
	} else {
		s += m.result + "\n"
	}
	return
}

func (m queryCommandModel) GetError() error {
	return m.err
}

func timeoutString(timeout time.Duration) string {
	if timeout == 0 {
		timeout = atomicdate.DefaultTimeout
	}
	return timeout.String()
}
