package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	Exit     key.Binding
	Register key.Binding
	Back     key.Binding
	Refresh  key.Binding
	Check    key.Binding
	Logout   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Exit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Register: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "create account"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back to sign in"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Check: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "check status"),
		),
		Logout: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "sign out"),
		),
	}
}

func (k keyMap) forRoute(r Route) []key.Binding {
	switch r {
	case RouteLogin:
		return []key.Binding{k.Register, k.Quit}
	case RouteRegister:
		return []key.Binding{k.Back, k.Quit}
	case RouteDashboard:
		return []key.Binding{k.Refresh, k.Logout, k.Exit}
	case RoutePending:
		return []key.Binding{k.Check, k.Logout, k.Exit}
	default:
		return []key.Binding{k.Quit}
	}
}
