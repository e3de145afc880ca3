package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RelayStatus is what `duet status` shows about a relay.
type RelayStatus struct {
	URL       string
	Rooms     int
	Members   int
	FullRooms int
	Counters  map[string]uint64
}

// StatusTableView renders relay stats as a table.
func StatusTableView(s RelayStatus) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.SetTitle(fmt.Sprintf("%s Relay %s", IconStats, s.URL))

	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Active rooms", s.Rooms})
	t.AppendRow(table.Row{"Members", s.Members})
	t.AppendRow(table.Row{"Full rooms", s.FullRooms})

	if len(s.Counters) > 0 {
		t.AppendSeparator()
		names := make([]string, 0, len(s.Counters))
		for name := range s.Counters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			t.AppendRow(table.Row{counterLabel(name), s.Counters[name]})
		}
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}

func RenderStatusTable(s RelayStatus) {
	fmt.Println(StatusTableView(s))
}

// counterLabel turns "relayed_offer" into "relayed offer".
func counterLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// RoomInfoView shows the key to share with the other participant.
func RoomInfoView(roomKey string) string {
	content := fmt.Sprintf("%s\n%s\n\n%s Share this key:  %s\n%s Join with:      %s",
		TitleStyle.Render(IconSuccess+" Room ready"),
		SubtitleStyle.Render("The call starts when someone joins"),
		IconCopy, BoldStyle.Foreground(Primary).Render(roomKey),
		IconRoom, MutedStyle.Render("duet join "+roomKey),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(roomKey string) {
	fmt.Println(lipgloss.NewStyle().MarginTop(1).Render(RoomInfoView(roomKey)))
}
