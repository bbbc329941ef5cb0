package editor

import (
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type Editor struct {
	Editing   bool   // Is the editor open
	EditorCmd string // Command to open the editor on shell, may carry arguments
}

// Msg for when the editor is closed.
type EditingFinished struct {
	Path string
	Err  error
}

// command builds the editor invocation for path. Arguments in editorCmd
// such as "code --wait" are kept.
func command(editorCmd, path string) *exec.Cmd {
	fields := strings.Fields(editorCmd)
	if len(fields) == 0 {
		fields = []string{"vi"}
	}
	args := append(fields[1:], path)
	return exec.Command(fields[0], args...)
}

// this opens up an external editor.
func openEditor(editorCmd, path string) tea.Cmd {
	return tea.ExecProcess(command(editorCmd, path), func(err error) tea.Msg {
		return EditingFinished{Path: path, Err: err}
	})
}

func (m *Editor) Init() tea.Cmd {
	return nil
}

// EditFile suspends the program and opens path in the editor.
func (m *Editor) EditFile(path string) tea.Cmd {
	m.Editing = true
	return openEditor(m.EditorCmd, path)
}

func (m Editor) Update(msg tea.Msg) (Editor, tea.Cmd) {
	switch msg.(type) {
	case EditingFinished:
		m.Editing = false
	}
	return m, nil
}

// Doesnt render anything
func (m Editor) View() string {
	return ""
}
