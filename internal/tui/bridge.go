package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/iKenshu/quodpot-game/internal/client"
	"github.com/iKenshu/quodpot-game/internal/protocol"
)

// Sender delivers messages to a running model, as *tea.Program does
type Sender interface {
	Send(msg tea.Msg)
}

// ActionSender is the part of the client the command handler needs
type ActionSender interface {
	Send(a protocol.Action) error
}

// Direct applies messages to a model synchronously. It stands in for a
// program when no terminal is attached.
type Direct struct {
	Model *TUIModel
}

func (d Direct) Send(msg tea.Msg) {
	d.Model.Update(msg)
}

// SetupNetworkHandlers forwards every server event to the model
func SetupNetworkHandlers(c *client.Client, program Sender) func() {
	return c.AddEventHandler(client.AllEvents, func(ev protocol.Event) {
		program.Send(EventMsg{Event: ev})
	})
}

// StartCommandHandler sends the user's commands to the server until the
// user quits or the client disconnects.
func StartCommandHandler(c ActionSender, done <-chan struct{}, tui *TUIModel) {
	go func() {
		for {
			select {
			case result := <-tui.Actions():
				if !handleCommand(c, tui, result) {
					return
				}
			case <-done:
				tui.SendQuitSignal()
				return
			}
		}
	}()
}

// handleCommand reports false once the handler should stop
func handleCommand(c ActionSender, tui *TUIModel, result ActionResult) bool {
	if result.Quit {
		_ = c.Send(protocol.Leave{}) // best effort before the connection closes
		tui.SendQuitSignal()
		return false
	}
	if result.Action == nil {
		return true
	}
	if err := c.Send(result.Action); err != nil {
		tui.logger.Error("Failed to send action", "action", result.Action.ActionType(), "error", err)
	}
	return true
}
