package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Duet/internal/call"
	"github.com/BioHazard786/Duet/internal/control"
	"github.com/BioHazard786/Duet/internal/negotiation"
)

// Reactions are bound to keys 1-4.
var Reactions = []string{"👍", "😂", "🎉", "❤️"}

const chatHistory = 50

// Controller is the call surface driven by key presses.
type Controller interface {
	ToggleScreen() (bool, error)
	ToggleMute() bool
	ToggleVideo() bool
	SendChat(text string) error
	SendReaction(emoji string) error
	Leave()
}

// SessionEndedMsg tells the model the session returned.
type SessionEndedMsg struct {
	Err error
}

type eventMsg call.Event

type eventsClosedMsg struct{}

type chatLine struct {
	self     bool
	from     string
	text     string
	reaction bool
	at       time.Time
}

// CallModel is the interactive screen for `duet join`.
type CallModel struct {
	ctrl    Controller
	events  <-chan call.Event
	spinner spinner.Model
	input   textinput.Model

	roomKey  string
	role     string
	state    negotiation.State
	peer     control.PeerInfo
	present  bool
	local    control.MediaState
	remote   control.MediaState
	tracks   map[string]bool
	chat     []chatLine
	notice   string
	chatting bool
	err      error
	quitting bool
}

// NewCallModel builds the call screen.
func NewCallModel(roomKey string, ctrl Controller, events <-chan call.Event) *CallModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	in := textinput.New()
	in.Placeholder = "say something"
	in.CharLimit = 2000
	in.Prompt = IconChat + " "

	return &CallModel{
		ctrl:    ctrl,
		events:  events,
		spinner: s,
		input:   in,
		roomKey: roomKey,
		local:   control.MediaState{Audio: true, Video: true},
		tracks:  make(map[string]bool),
	}
}

// Err returns the error the session ended with, if any.
func (m *CallModel) Err() error {
	return m.err
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

func (m *CallModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.chatting {
			return m.updateChat(msg)
		}
		return m.updateKeys(msg)

	case eventMsg:
		m.apply(call.Event(msg))
		return m, m.listenForEvents()

	case eventsClosedMsg:
		return m, nil

	case SessionEndedMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *CallModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c":
		m.ctrl.Leave()
		m.quitting = true
		return m, tea.Quit

	case "s":
		sharing, err := m.ctrl.ToggleScreen()
		if err != nil {
			m.notice = err.Error()
			break
		}
		m.local.Screen = sharing
		m.notice = ""

	case "m":
		m.local.Audio = !m.ctrl.ToggleMute()

	case "v":
		m.local.Video = !m.ctrl.ToggleVideo()

	case "c", "enter":
		m.chatting = true
		return m, m.input.Focus()

	case "1", "2", "3", "4":
		emoji := Reactions[key[0]-'1']
		if err := m.ctrl.SendReaction(emoji); err != nil {
			m.notice = err.Error()
			break
		}
		m.addLine(chatLine{self: true, text: emoji, reaction: true, at: time.Now()})
	}
	return m, nil
}

func (m *CallModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.closeInput()
		if text == "" {
			return m, nil
		}
		if err := m.ctrl.SendChat(text); err != nil {
			m.notice = err.Error()
			return m, nil
		}
		m.addLine(chatLine{self: true, text: text, at: time.Now()})
		return m, nil

	case tea.KeyCtrlC:
		m.ctrl.Leave()
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *CallModel) closeInput() {
	m.chatting = false
	m.input.Reset()
	m.input.Blur()
}

func (m *CallModel) apply(ev call.Event) {
	switch ev.Kind {
	case call.EventRoom:
		m.role = ev.Role.String()
		m.present = false
		m.remote = control.MediaState{}
		m.peer = control.PeerInfo{}
		m.tracks = make(map[string]bool)
	case call.EventPeerJoined:
		m.present = true
		m.notice = ""
	case call.EventPeerLeft:
		m.present = false
		m.notice = "peer left, waiting for someone to join"
	case call.EventState:
		m.state = ev.State
	case call.EventChat:
		m.addLine(chatLine{from: ev.From, text: ev.Text, at: stamp(ev.TS)})
	case call.EventReaction:
		m.addLine(chatLine{from: ev.From, text: ev.Emoji, reaction: true, at: stamp(ev.TS)})
	case call.EventRemoteInfo:
		m.peer = ev.Peer
	case call.EventRemoteMedia:
		m.remote = ev.Media
	case call.EventRemoteTrack:
		m.tracks[ev.TrackKind] = true
	case call.EventLocalMedia:
		m.local = ev.Media
	case call.EventError:
		if ev.Err != nil {
			m.notice = ev.Err.Error()
		}
	}
}

func (m *CallModel) addLine(l chatLine) {
	m.chat = append(m.chat, l)
	if len(m.chat) > chatHistory {
		m.chat = m.chat[len(m.chat)-chatHistory:]
	}
}

func stamp(ms int64) time.Time {
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func (m *CallModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Duet  %s %s", IconCall, IconRoom, m.roomKey)))
	b.WriteString("\n")
	b.WriteString(m.viewStatus())
	b.WriteString("\n")
	b.WriteString(BoxStyle.Render(m.viewMedia()))
	b.WriteString("\n")

	if len(m.chat) > 0 {
		b.WriteString(m.viewChat(10))
		b.WriteString("\n")
	}
	if m.chatting {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(WarningStyle.Render(m.notice))
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render(m.viewHelp()))
	return b.String()
}

func (m *CallModel) viewStatus() string {
	role := m.role
	if role == "" {
		role = "joining"
	}

	switch {
	case !m.present:
		return fmt.Sprintf("%s %s %s", m.spinner.View(), StatusStyle.Render(role), MutedStyle.Render(IconWaiting+" waiting for peer"))
	case m.state == negotiation.StateConnected:
		return fmt.Sprintf("%s %s %s", SuccessStyle.Render(IconConnect), StatusStyle.Render(role), SuccessStyle.Render("connected"))
	default:
		return fmt.Sprintf("%s %s %s", m.spinner.View(), StatusStyle.Render(role), MutedStyle.Render(m.state.String()))
	}
}

func (m *CallModel) viewMedia() string {
	you := fmt.Sprintf("You   %s", mediaIcons(m.local))

	name := "peer"
	if m.peer.Name != "" {
		name = m.peer.Name
	}
	var them string
	switch {
	case !m.present:
		them = MutedStyle.Render(fmt.Sprintf("%s nobody yet", IconPeer))
	default:
		them = fmt.Sprintf("%s %s  %s", IconPeer, PeerStyle.Render(name), mediaIcons(m.remote))
		if len(m.tracks) > 0 {
			kinds := make([]string, 0, len(m.tracks))
			for _, k := range []string{"audio", "video"} {
				if m.tracks[k] {
					kinds = append(kinds, k)
				}
			}
			them += MutedStyle.Render("  receiving " + strings.Join(kinds, "+"))
		}
	}
	return you + "\n" + them
}

func mediaIcons(s control.MediaState) string {
	mic := IconMic + " on"
	if !s.Audio {
		mic = IconMicOff + " muted"
	}
	video := IconCamera + " camera"
	switch {
	case s.Screen:
		video = IconScreen + " screen"
	case !s.Video:
		video = IconVideoOff + " off"
	}
	return mic + "  " + video
}

func (m *CallModel) viewChat(lines int) string {
	start := 0
	if len(m.chat) > lines {
		start = len(m.chat) - lines
	}

	var b strings.Builder
	for _, l := range m.chat[start:] {
		who := PeerStyle.Render(shortID(l.from))
		if l.self {
			who = SelfStyle.Render("you")
		}
		ts := MutedStyle.Render(l.at.Format("15:04"))
		if l.reaction {
			b.WriteString(fmt.Sprintf("%s %s reacted %s\n", ts, who, l.text))
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s: %s\n", ts, who, l.text))
	}
	return b.String()
}

func shortID(id string) string {
	if id == "" {
		return "peer"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m *CallModel) viewHelp() string {
	if m.chatting {
		return "enter send • esc cancel"
	}
	return "s screen • m mic • v video • c chat • 1-4 react • q leave"
}
