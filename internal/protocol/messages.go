package protocol

// MessageType identifies the type of message
type MessageType string

const (
	// Client -> Server
	TypeJoin       MessageType = "join"
	TypeLeave      MessageType = "leave"
	TypeGuess      MessageType = "guess"
	TypeCastAction MessageType = "cast_action"

	// Server -> Client, shared
	TypeJoined  MessageType = "joined"
	TypeWaiting MessageType = "waiting"
	TypeError   MessageType = "error"

	// Server -> Client, race
	TypeSessionStart   MessageType = "session_start"
	TypeStageUpdate    MessageType = "stage_update"
	TypeCorrectGuess   MessageType = "correct_guess"
	TypeWrongGuess     MessageType = "wrong_guess"
	TypeStageComplete  MessageType = "stage_complete"
	TypeStageFailed    MessageType = "stage_failed"
	TypeSessionOver    MessageType = "session_over"
	TypePlayerProgress MessageType = "player_progress"
	TypePlayerJoined   MessageType = "player_joined"
	TypeStageStatus    MessageType = "stage_status"

	// Server -> Client, duels
	TypeDuelStart     MessageType = "duel_start"
	TypeRoundStart    MessageType = "round_start"
	TypeOpponentActed MessageType = "opponent_acted"
	TypeRoundResult   MessageType = "round_result"
	TypeDuelOver      MessageType = "duel_over"
)

// String returns the wire name of the message type
func (mt MessageType) String() string {
	return string(mt)
}

// Client -> Server Messages

// Action is one of the inbound client messages. The set is closed: only the
// types in this package implement it.
type Action interface {
	ActionType() MessageType
	isAction()
}

// Join asks to enter the admission queue of a game type
type Join struct {
	PlayerName string `json:"player_name"`
	GameType   string `json:"game_type"`
	Mode       string `json:"mode,omitempty"` // duels only: "pvp" (default) or "pve"
}

// Leave withdraws from the queue or the running session
type Leave struct{}

// Guess submits one letter in a race session
type Guess struct {
	Letter string `json:"letter"`
}

// CastAction submits the spell for the current duel round
type CastAction struct {
	Action string `json:"action"`
}

func (Join) ActionType() MessageType       { return TypeJoin }
func (Leave) ActionType() MessageType      { return TypeLeave }
func (Guess) ActionType() MessageType      { return TypeGuess }
func (CastAction) ActionType() MessageType { return TypeCastAction }

func (Join) isAction()       {}
func (Leave) isAction()      {}
func (Guess) isAction()      {}
func (CastAction) isAction() {}

// Server -> Client Messages

// Event is an outbound message. Encode adds the type discriminator.
type Event interface {
	EventType() MessageType
}

// ParticipantInfo identifies a participant in session-wide events
type ParticipantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Joined confirms a join; SessionID is empty while the participant waits
type Joined struct {
	ParticipantID string `json:"participant_id"`
	SessionID     string `json:"session_id"`
	Name          string `json:"name"`
}

// Waiting reports the queue size to everyone waiting for a game type
type Waiting struct {
	QueueSize int    `json:"queue_size"`
	Message   string `json:"message"`
}

// Error reports a rejected action to its sender only
type Error struct {
	Message string `json:"message"`
}

// SessionStart is sent when a race session begins, and to late joiners
type SessionStart struct {
	SessionID    string            `json:"session_id"`
	Participants []ParticipantInfo `json:"participants"`
	StageCount   int               `json:"stage_count"`
}

// StageUpdate describes the participant's current stage
type StageUpdate struct {
	Stage        int    `json:"stage"`
	Revealed     string `json:"revealed"`
	AttemptsLeft int    `json:"attempts_left"`
}

type CorrectGuess struct {
	Letter   string `json:"letter"`
	Revealed string `json:"revealed"`
}

type WrongGuess struct {
	Letter       string `json:"letter"`
	AttemptsLeft int    `json:"attempts_left"`
}

type StageComplete struct {
	Stage int    `json:"stage"`
	Word  string `json:"word"`
}

type StageFailed struct {
	ResetTo int    `json:"reset_to"`
	Word    string `json:"word"`
}

// SessionOver announces the race winner and reveals every word
type SessionOver struct {
	WinnerID   string   `json:"winner_id"`
	WinnerName string   `json:"winner_name"`
	Words      []string `json:"words"`
}

// PlayerProgress tells the others that a participant changed stage
type PlayerProgress struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Stage         int    `json:"stage"`
}

// PlayerJoined tells the others about a late joiner
type PlayerJoined struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Stage         int    `json:"stage"`
}

// StageStatus maps each stage number to the names of the connected
// participants currently on it.
type StageStatus struct {
	Stages map[int][]string `json:"stages"`
}

type DuelStart struct {
	SessionID    string `json:"session_id"`
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
	RoundsToWin  int    `json:"rounds_to_win"`
	Mode         string `json:"mode"`
}

type RoundStart struct {
	Round        int `json:"round"`
	TimerSeconds int `json:"timer_seconds"`
}

type OpponentActed struct {
	Message string `json:"message"`
}

// RoundResult is personalised: "your" fields belong to the recipient
type RoundResult struct {
	Round         int    `json:"round"`
	YourSpell     string `json:"your_spell"`
	OpponentSpell string `json:"opponent_spell"`
	Result        string `json:"result"` // win, lose, tie
	YourScore     int    `json:"your_score"`
	OpponentScore int    `json:"opponent_score"`
	TimedOut      bool   `json:"timed_out,omitempty"`
}

type DuelOver struct {
	WinnerID   string `json:"winner_id"`
	WinnerName string `json:"winner_name"`
	FinalScore string `json:"final_score"`
	YourResult string `json:"your_result"` // victory, defeat
	Forfeit    bool   `json:"forfeit,omitempty"`
}

func (Joined) EventType() MessageType         { return TypeJoined }
func (Waiting) EventType() MessageType        { return TypeWaiting }
func (Error) EventType() MessageType          { return TypeError }
func (SessionStart) EventType() MessageType   { return TypeSessionStart }
func (StageUpdate) EventType() MessageType    { return TypeStageUpdate }
func (CorrectGuess) EventType() MessageType   { return TypeCorrectGuess }
func (WrongGuess) EventType() MessageType     { return TypeWrongGuess }
func (StageComplete) EventType() MessageType  { return TypeStageComplete }
func (StageFailed) EventType() MessageType    { return TypeStageFailed }
func (SessionOver) EventType() MessageType    { return TypeSessionOver }
func (PlayerProgress) EventType() MessageType { return TypePlayerProgress }
func (PlayerJoined) EventType() MessageType   { return TypePlayerJoined }
func (StageStatus) EventType() MessageType    { return TypeStageStatus }
func (DuelStart) EventType() MessageType      { return TypeDuelStart }
func (RoundStart) EventType() MessageType     { return TypeRoundStart }
func (OpponentActed) EventType() MessageType  { return TypeOpponentActed }
func (RoundResult) EventType() MessageType    { return TypeRoundResult }
func (DuelOver) EventType() MessageType       { return TypeDuelOver }
