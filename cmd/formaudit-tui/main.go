// Command formaudit-tui is a terminal dashboard for a running formauditd:
// connected browsers and MCP clients, the latest audit report, and keys to
// trigger audits.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"github.com/adityalohuni/formaudit/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	zone.NewGlobal()
	settings, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	m := newModel(newAdminClient(settings), settings)
	m.syncLayout()
	m.syncViewportContent()
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}
