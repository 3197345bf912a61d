// Package tui is the Bubble Tea terminal client for races and duels.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/iKenshu/quodpot-game/internal/protocol"
)

// Phase is where the player is in the join/play cycle
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseWaiting
	PhasePlaying
	PhaseOver
)

const (
	gameRace  = "race"
	gameDuels = "duels"
)

var spellShortcuts = map[string]string{
	"1": "ignis", "ignis": "ignis",
	"2": "aqua", "aqua": "aqua",
	"3": "virel", "virel": "virel",
}

// TUIModel represents the Bubble Tea model for both games
type TUIModel struct {
	logger *log.Logger

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State
	gameLog      []string
	actionResult chan ActionResult
	quitSignal   chan bool
	quitting     bool
	focusedPane  int // 0 = log, 1 = input

	// Session state, updated only from events
	gameType      string
	participantID string
	sessionID     string
	phase         Phase
	queueSize     int

	// Race
	stage        int
	stageCount   int
	revealed     string
	attemptsLeft int
	stageStatus  map[int][]string

	// Duel
	opponentName string
	round        int
	roundsToWin  int
	timerSeconds int
	myScore      int
	theirScore   int
	castThisTurn bool

	// Dimensions
	width       int
	height      int
	initialized bool // Track if viewport has been properly sized

	// Test mode
	testMode      bool
	capturedLog   []string                   // For test assertions
	eventCallback func(protocol.MessageType) // Callback for test event synchronization
}

// ActionResult is a user command resolved against the current game
type ActionResult struct {
	Quit   bool
	Action protocol.Action // nil when there is nothing to send
}

// QuitMsg is a custom message to signal quit
type QuitMsg struct{}

// EventMsg delivers a server event to the model
type EventMsg struct {
	Event protocol.Event
}

// NewTUIModel creates a new TUI model for the given game type
func NewTUIModel(gameType string, logger *log.Logger) *TUIModel {
	return NewTUIModelWithOptions(gameType, logger, false)
}

// NewTUIModelWithOptions creates a new TUI model with test mode option
func NewTUIModelWithOptions(gameType string, logger *log.Logger, testMode bool) *TUIModel {
	// Create viewport for game log with minimal initial size
	// Will be properly sized when WindowSizeMsg arrives
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 40
	ti.Width = 60
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	return &TUIModel{
		logger:       logger.WithPrefix("tui"),
		logViewport:  vp,
		actionInput:  ti,
		gameLog:      []string{},
		actionResult: make(chan ActionResult, 8),
		quitSignal:   make(chan bool, 1),
		focusedPane:  1, // Start with input focused
		gameType:     gameType,
		stageStatus:  map[int][]string{},
		testMode:     testMode,
		capturedLog:  []string{},
	}
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForQuit())
}

// listenForQuit returns a command that listens for quit signals
func (m *TUIModel) listenForQuit() tea.Cmd {
	return func() tea.Msg {
		<-m.quitSignal
		return QuitMsg{}
	}
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case QuitMsg:
		m.quitting = true
		return m, tea.Sequence(tea.ClearScreen, tea.Quit)

	case EventMsg:
		m.handleEvent(msg.Event)
		m.notifyEventCallback(msg.Event.EventType())
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updated dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			m.pushResult(ActionResult{Quit: true})
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			// Switch focus between log and input
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				m.processAction(m.actionInput.Value())
				m.actionInput.SetValue("")
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "pgup":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageUp()
			}
		case "pgdown":
			if m.focusedPane == 0 {
				m.logViewport.HalfPageDown()
			}
		case "home":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd

	// Only update input if it's focused
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Always update viewport (for scrolling)
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleEvent folds a server event into the model and the log
func (m *TUIModel) handleEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Joined:
		m.participantID = ev.ParticipantID
		m.sessionID = ev.SessionID
		if ev.SessionID == "" {
			m.phase = PhaseWaiting
			m.AddLogEntry(fmt.Sprintf("Joined as %s, waiting for players", ev.Name))
		} else {
			m.AddLogEntry(fmt.Sprintf("Joined as %s", ev.Name))
		}

	case protocol.Waiting:
		m.queueSize = ev.QueueSize
		m.AddLogEntry(ev.Message)

	case protocol.Error:
		m.AddLogEntry("Error: " + ev.Message)

	case protocol.SessionStart:
		m.gameType = gameRace
		m.sessionID = ev.SessionID
		m.phase = PhasePlaying
		m.stageCount = ev.StageCount
		names := make([]string, len(ev.Participants))
		for i, p := range ev.Participants {
			names[i] = p.Name
		}
		m.AddBoldLogEntry(fmt.Sprintf("Race %s • %d stages • %s", ev.SessionID, ev.StageCount, strings.Join(names, ", ")))

	case protocol.StageUpdate:
		m.stage = ev.Stage
		m.revealed = ev.Revealed
		m.attemptsLeft = ev.AttemptsLeft
		m.AddLogEntry(fmt.Sprintf("*** STAGE %d ***  %s", ev.Stage, ev.Revealed))

	case protocol.CorrectGuess:
		m.revealed = ev.Revealed
		m.AddLogEntry(fmt.Sprintf("%s is in the word: %s", ev.Letter, ev.Revealed))

	case protocol.WrongGuess:
		m.attemptsLeft = ev.AttemptsLeft
		m.AddLogEntry(fmt.Sprintf("No %s. %d attempts left", ev.Letter, ev.AttemptsLeft))

	case protocol.StageComplete:
		m.AddLogEntry(fmt.Sprintf("Stage %d solved: %s", ev.Stage, ev.Word))

	case protocol.StageFailed:
		m.AddLogEntry(fmt.Sprintf("Out of attempts, the word was %s. Back to stage %d", ev.Word, ev.ResetTo))

	case protocol.PlayerProgress:
		m.AddLogEntry(fmt.Sprintf("%s is on stage %d", ev.Name, ev.Stage))

	case protocol.PlayerJoined:
		m.AddLogEntry(fmt.Sprintf("%s joined the race", ev.Name))

	case protocol.StageStatus:
		m.stageStatus = ev.Stages

	case protocol.SessionOver:
		m.phase = PhaseOver
		if ev.WinnerID == m.participantID {
			m.AddBoldLogEntry("You won the race!")
		} else {
			m.AddBoldLogEntry(fmt.Sprintf("%s won the race", ev.WinnerName))
		}
		m.AddLogEntry("Words: " + strings.Join(ev.Words, ", "))

	case protocol.DuelStart:
		m.gameType = gameDuels
		m.sessionID = ev.SessionID
		m.phase = PhasePlaying
		m.opponentName = ev.OpponentName
		m.roundsToWin = ev.RoundsToWin
		m.myScore, m.theirScore = 0, 0
		m.AddBoldLogEntry(fmt.Sprintf("Duel against %s • first to %d", ev.OpponentName, ev.RoundsToWin))

	case protocol.RoundStart:
		m.round = ev.Round
		m.timerSeconds = ev.TimerSeconds
		m.castThisTurn = false
		m.AddLogEntry(fmt.Sprintf("*** ROUND %d *** %ds to cast", ev.Round, ev.TimerSeconds))

	case protocol.OpponentActed:
		m.AddLogEntry(ev.Message)

	case protocol.RoundResult:
		m.myScore, m.theirScore = ev.YourScore, ev.OpponentScore
		entry := fmt.Sprintf("Round %d: %s vs %s, %s (%d-%d)",
			ev.Round, ev.YourSpell, ev.OpponentSpell, ev.Result, ev.YourScore, ev.OpponentScore)
		if ev.TimedOut {
			entry += " after timeout"
		}
		m.AddLogEntry(entry)

	case protocol.DuelOver:
		m.phase = PhaseOver
		switch {
		case ev.YourResult == "victory" && ev.Forfeit:
			m.AddBoldLogEntry(fmt.Sprintf("Victory by forfeit (%s)", ev.FinalScore))
		case ev.YourResult == "victory":
			m.AddBoldLogEntry(fmt.Sprintf("Victory! %s", ev.FinalScore))
		default:
			m.AddBoldLogEntry(fmt.Sprintf("Defeat. %s wins %s", ev.WinnerName, ev.FinalScore))
		}
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}

	// Don't render until we have valid dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight-2, 1))
	actionPane := actionStyle.Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 25)
	paneHeight := max(m.height-actionHeight-4, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	m.logViewport.SetContent(m.renderLogPane())
	m.logViewport.Width = max(m.width-sidebarWidth-4, 1)
	m.logViewport.Height = paneHeight

	// On first proper sizing, reset to top to avoid starting scrolled down
	if !m.initialized && m.logViewport.Width > 1 && m.logViewport.Height > 1 {
		m.logViewport.GotoTop()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(m.logViewport.Width).
		Height(m.logViewport.Height)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

// renderLogPane renders the game log pane content
func (m *TUIModel) renderLogPane() string {
	return strings.Join(m.gameLog, "\n")
}

// renderSidebarPane creates the sidebar content
func (m *TUIModel) renderSidebarPane() string {
	var content strings.Builder

	switch {
	case m.phase == PhaseWaiting:
		content.WriteString(WarningStyle.Render(fmt.Sprintf("In queue: %d", m.queueSize)))
		content.WriteString("\n")

	case m.gameType == gameDuels && m.phase != PhaseLobby:
		content.WriteString(HeaderStyle.Render(" Duel "))
		content.WriteString("\n\n")
		content.WriteString(PlayerInfoStyle.Render(fmt.Sprintf("You: %d", m.myScore)))
		content.WriteString("\n")
		content.WriteString(PlayerInfoStyle.Render(fmt.Sprintf("%s: %d", m.opponentName, m.theirScore)))
		content.WriteString("\n")
		content.WriteString(InfoStyle.Render(fmt.Sprintf("Round %d • first to %d", m.round, m.roundsToWin)))
		content.WriteString("\n")

	case m.gameType == gameRace && m.phase != PhaseLobby:
		content.WriteString(HeaderStyle.Render(" Race "))
		content.WriteString("\n\n")
		content.WriteString(StageInfoStyle.Render(fmt.Sprintf("Stage %d/%d", m.stage, m.stageCount)))
		content.WriteString("\n")
		content.WriteString(WarningStyle.Render(fmt.Sprintf("Attempts: %d", m.attemptsLeft)))
		content.WriteString("\n\n")
		content.WriteString(m.renderStageStatus())
	}

	return content.String()
}

func (m *TUIModel) renderStageStatus() string {
	stages := make([]int, 0, len(m.stageStatus))
	for stage := range m.stageStatus {
		stages = append(stages, stage)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(stages)))

	var b strings.Builder
	for _, stage := range stages {
		names := m.stageStatus[stage]
		if len(names) == 0 {
			continue
		}
		b.WriteString(InfoStyle.Render(fmt.Sprintf("%2d: %s", stage, strings.Join(names, ", "))))
		b.WriteString("\n")
	}
	return b.String()
}

// renderActionPane renders the action input pane
func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	switch {
	case m.phase != PhasePlaying:
		content.WriteString(StageInfoStyle.Render("Waiting..."))
		m.actionInput.Placeholder = "'quit' to exit"
	case m.gameType == gameRace:
		content.WriteString(StageInfoStyle.Render(m.revealed))
		m.actionInput.Placeholder = "Guess a letter"
	default:
		var spells []string
		for i, spell := range []string{"ignis", "aqua", "virel"} {
			spells = append(spells, spellStyle(spell).Render(fmt.Sprintf("[%d %s]", i+1, spell)))
		}
		content.WriteString(ActionsStyle.Render("Spells: ") + strings.Join(spells, " "))
		m.actionInput.Placeholder = "Cast a spell"
	}
	content.WriteString("\n")

	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, PgUp/PgDn half page, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))

	return content.String()
}

// AddLogEntry adds an entry to the game log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)

	// In test mode, also capture the log entry
	if m.testMode {
		m.capturedLog = append(m.capturedLog, entry)
		return // Skip UI updates in test mode
	}

	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// AddBoldLogEntry adds a highlighted entry to the game log
func (m *TUIModel) AddBoldLogEntry(entry string) {
	if m.testMode {
		m.gameLog = append(m.gameLog, entry)
		m.capturedLog = append(m.capturedLog, entry)
		return
	}
	m.AddLogEntry(lipgloss.NewStyle().Bold(true).Render(entry))
}

// ClearLog clears the game log
func (m *TUIModel) ClearLog() {
	m.gameLog = []string{}
	m.logViewport.SetContent("")
}

// processAction resolves typed input against the current game. Invalid
// input is reported in the log and never reaches the server.
func (m *TUIModel) processAction(input string) {
	result, notice := m.parseInput(input)
	if notice != "" {
		m.AddLogEntry(notice)
	}
	if result.Quit || result.Action != nil {
		m.pushResult(result)
	}
}

// parseInput returns the command to run and a line for the log
func (m *TUIModel) parseInput(input string) (ActionResult, string) {
	word := strings.ToLower(strings.TrimSpace(input))

	switch word {
	case "":
		return ActionResult{}, ""
	case "quit", "exit":
		return ActionResult{Quit: true}, ""
	case "leave":
		return ActionResult{Action: protocol.Leave{}}, "Leaving..."
	case "help":
		if m.gameType == gameDuels {
			return ActionResult{}, "Cast with ignis/aqua/virel or 1/2/3. Ignis beats virel, virel beats aqua, aqua beats ignis"
		}
		return ActionResult{}, "Type one letter to guess. 'leave' to leave, 'quit' to exit"
	}

	if m.phase != PhasePlaying {
		return ActionResult{}, "The game has not started yet"
	}

	if m.gameType == gameDuels {
		spell, ok := spellShortcuts[word]
		if !ok {
			return ActionResult{}, fmt.Sprintf("Unknown spell %q", word)
		}
		if m.castThisTurn {
			return ActionResult{}, "You already cast this round"
		}
		m.castThisTurn = true
		return ActionResult{Action: protocol.CastAction{Action: spell}}, "You cast " + spell
	}

	r, size := utf8.DecodeRuneInString(word)
	if size != len(word) || !unicode.IsLetter(r) {
		return ActionResult{}, "Guess a single letter"
	}
	return ActionResult{Action: protocol.Guess{Letter: string(unicode.ToUpper(r))}}, ""
}

func (m *TUIModel) pushResult(r ActionResult) {
	select {
	case m.actionResult <- r:
	default:
		m.logger.Warn("Dropping input, command handler is behind")
	}
}

// WaitForAction blocks until the user submits a command
func (m *TUIModel) WaitForAction() ActionResult {
	return <-m.actionResult
}

// Actions exposes submitted commands for the command handler
func (m *TUIModel) Actions() <-chan ActionResult {
	return m.actionResult
}

// SendQuitSignal signals the TUI to quit gracefully
func (m *TUIModel) SendQuitSignal() {
	select {
	case m.quitSignal <- true:
	default:
		// Channel is full, quit signal already sent
	}
}

// Phase returns the current phase
func (m *TUIModel) Phase() Phase {
	return m.phase
}

// GetCapturedLog returns the captured log entries (test mode only)
func (m *TUIModel) GetCapturedLog() []string {
	if !m.testMode {
		return nil
	}
	// Return a copy to prevent modification
	result := make([]string, len(m.capturedLog))
	copy(result, m.capturedLog)
	return result
}

// GetSidebarContent returns the rendered sidebar
func (m *TUIModel) GetSidebarContent() string {
	return m.renderSidebarPane()
}

// InjectAction submits input as if it had been typed (test mode only)
func (m *TUIModel) InjectAction(input string) error {
	if !m.testMode {
		return fmt.Errorf("action injection only available in test mode")
	}
	m.processAction(input)
	return nil
}

// IsTestMode returns whether the TUI is in test mode
func (m *TUIModel) IsTestMode() bool {
	return m.testMode
}

// SetEventCallback sets a callback function for test event synchronization
func (m *TUIModel) SetEventCallback(callback func(protocol.MessageType)) {
	if m.testMode {
		m.eventCallback = callback
	}
}

// notifyEventCallback calls the event callback if in test mode
func (m *TUIModel) notifyEventCallback(eventType protocol.MessageType) {
	if m.testMode && m.eventCallback != nil {
		m.eventCallback(eventType)
	}
}
