package main

import (
	"log"
	"strconv"
	"time"

	"github.com/AndrewLester/atomicdate/internal/rpc"
	"github.com/AndrewLester/atomicdate/internal/ui"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func handleStatusUI(socket string) {
	m := statusUIModel{socket: socket, table: setupTable()}

	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

const fetchStatusPeriod = time.Second * 5

type statusUIModel struct {
	socket string
	client *rpc.Client

	table            table.Model
	daemonKillStatus string
}

type dialSocketMessage *rpc.Client
type fetchStatusMessage *rpc.Status
type tickMsg time.Time

func dialSocketCommand(socket string) tea.Cmd {
	return func() tea.Msg {
		client, err := rpc.Dial(socket)
		if err != nil {
			log.Fatalf("Error connecting to atomicdate daemon: %v", err)
		}

		return dialSocketMessage(client)
	}
}

func fetchStatusCommand(client *rpc.Client) tea.Cmd {
	return func() tea.Msg {
		status, err := client.Status()
		if err != nil {
			log.Fatalf("Error getting status from daemon: %v", err)
		}
		return fetchStatusMessage(status)
	}
}

func stopDaemonCommand() tea.Cmd {
	return func() tea.Msg {
		killDaemon()
		return nil
	}
}

func tickCommand(duration time.Duration) tea.Cmd {
	return tea.Tick(duration, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m statusUIModel) Init() tea.Cmd {
	return dialSocketCommand(m.socket)
}

func (m statusUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "stop", "s":
			m.daemonKillStatus = "Stopping " + daemonName
			return m, tea.Sequence(stopDaemonCommand(), tea.Quit)
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		return m, nil
	case dialSocketMessage:
		m.client = msg
		return m, tickCommand(0)
	case fetchStatusMessage:
		m.table.SetRows([]table.Row{statusRow(msg, time.Now())})
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCommand(fetchStatusPeriod), fetchStatusCommand(m.client))
	default:
		return m, nil
	}
}

func statusRow(status *rpc.Status, now time.Time) table.Row {
	server := status.Host + ":" + strconv.Itoa(status.Port)
	if !status.Synchronized {
		return table.Row{server, "-", "never", status.Period.String()}
	}
	return table.Row{
		server,
		strconv.FormatInt(status.Offset, 10),
		now.Sub(status.LastSync).Truncate(time.Second).String() + " ago",
		status.Period.String(),
	}
}

func (m statusUIModel) View() (s string) {
	s += ui.Title("atomicdate") + "\n"
	s += tableBase(m.table.View()) + "\n\n"
	if m.daemonKillStatus != "" {
		s += m.daemonKillStatus + "\n"
	} else {
		s += ui.Help("q: exit, s: stop daemon") + "\n"
	}
	return
}

var tableBase = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(ui.Gray).
	Render

func setupTable() table.Model {
	columns := []table.Column{
		{Title: "Server", Width: 25},
		{Title: "Offset (ms)", Width: 15},
		{Title: "Last Sync", Width: 15},
		{Title: "Period", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(2),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ui.Gray).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(s)

	return t
}
