package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/AndrewLester/atomicdate/internal/ui"
	"github.com/AndrewLester/atomicdate/pkg/atomicdate"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshPeriod = 100 * time.Millisecond

type countdownModel struct {
	clock   clock
	spinner spinner.Model

	target time.Time
	label  string

	now    time.Time
	synced bool
	err    error
}

type tickMsg time.Time

func tickCommand() tea.Cmd {
	return tea.Tick(refreshPeriod, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// nextNewYear is midnight of the coming January 1st in now's location.
func nextNewYear(now time.Time) time.Time {
	return time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, now.Location())
}

// formatRemaining renders d as days and a clock, rounded down to tenths.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(100 * time.Millisecond)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	tenths := d / (100 * time.Millisecond)

	hms := fmt.Sprintf("%02d:%02d:%02d.%d", hours, minutes, seconds, tenths)
	switch days {
	case 0:
		return hms
	case 1:
		return "1 day " + hms
	default:
		return fmt.Sprintf("%d days %s", days, hms)
	}
}

func (m countdownModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg { return tickMsg(time.Now()) })
}

func (m countdownModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		now, err := m.clock.Now()
		switch {
		case errors.Is(err, atomicdate.ErrNotSynchronized):
			m.synced = false
		case err != nil:
			m.err = err
			return m, tea.Quit
		default:
			m.synced = true
			m.now = now
			if m.target.IsZero() {
				m.target = nextNewYear(now)
				m.label = fmt.Sprintf("New Year %d", m.target.Year())
			}
		}
		return m, tickCommand()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m countdownModel) View() (s string) {
	if m.err != nil {
		return
	}

	if !m.synced {
		s += ui.Title("Countdown") + "\n\n"
		s += m.spinner.View() + " Synchronizing with the time server\n\n"
		s += ui.Help("q: exit") + "\n"
		return
	}

	remaining := m.target.Sub(m.now)
	s += ui.Title("Countdown to "+m.label) + "\n\n"
	if remaining <= 0 {
		s += ui.Clock("It's here!") + "\n\n"
	} else {
		s += ui.Clock(formatRemaining(remaining)) + "\n\n"
	}
	s += ui.Help("network time "+m.now.Format("15:04:05.0")+"  q: exit") + "\n"
	return
}

func (m countdownModel) GetError() error {
	return m.err
}
