package debugger

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/myaltaccountsthis/mars-red/vm"
)

// TUI is the text user interface for the debugger, built on tview.
// Layout: registers on the right, disassembly on the left, console
// output below, command input at the bottom.
type TUI struct {
	debugger *Debugger
	app      *tview.Application

	registers *tview.TextView
	disasm    *tview.TextView
	console   *tview.TextView
	input     *tview.InputField
}

// NewTUI creates the interface over a debugger
func NewTUI(d *Debugger) *TUI {
	t := &TUI{
		debugger: d,
		app:      tview.NewApplication(),
	}

	t.registers = tview.NewTextView()
	t.registers.SetBorder(true).SetTitle(" Registers ")

	t.disasm = tview.NewTextView()
	t.disasm.SetBorder(true).SetTitle(" Text Segment ")

	t.console = tview.NewTextView()
	t.console.SetScrollable(true)
	t.console.SetChangedFunc(func() {
		t.app.Draw()
	})
	t.console.SetBorder(true).SetTitle(" Console ")

	t.input = tview.NewInputField().SetLabel("(dbg) ")
	t.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		t.execute(t.input.GetText())
		t.input.SetText("")
	})
	t.input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyUp:
			t.input.SetText(d.History.Previous())
			return nil
		case tcell.KeyDown:
			t.input.SetText(d.History.Next())
			return nil
		}
		return event
	})

	top := tview.NewFlex().
		AddItem(t.disasm, 0, 2, false).
		AddItem(t.registers, 42, 0, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(top, 0, 2, false).
		AddItem(t.console, 0, 1, false).
		AddItem(t.input, 1, 0, true)

	t.app.SetRoot(root, true)

	// Program output lands in the console pane
	d.Machine.OutputWriter = tview.ANSIWriter(t.console)

	return t
}

// Run starts the interface; it returns when the user quits
func (t *TUI) Run() error {
	t.refresh()
	return t.app.Run()
}

// execute runs one command line and refreshes the panes
func (t *TUI) execute(cmdLine string) {
	if err := t.debugger.ExecuteCommand(cmdLine); err != nil {
		fmt.Fprintf(t.console, "error: %v\n", err)
	}
	if out := t.debugger.GetOutput(); out != "" {
		fmt.Fprint(t.console, out)
	}
	if t.debugger.Quit {
		t.app.Stop()
		return
	}
	t.refresh()
}

// refresh redraws the register and disassembly panes from the machine
func (t *TUI) refresh() {
	m := t.debugger.Machine

	t.registers.SetText(registerColumn(m))
	t.disasm.SetText(t.disassembly())
}

// registerColumn renders registers one per line for the side pane
func registerColumn(m *vm.Machine) string {
	var out string
	regs := m.Registers.Snapshot()
	for i := 0; i < 32; i++ {
		out += fmt.Sprintf("%-5s %s\n", registerLabel(i), vm.FormatHex(regs[i]))
	}
	out += fmt.Sprintf("pc    %s\nhi    %s\nlo    %s\n",
		vm.FormatHex(m.Registers.PC), vm.FormatHex(m.Registers.HI), vm.FormatHex(m.Registers.LO))
	return out
}

func registerLabel(num int) string {
	return fmt.Sprintf("$%d", num)
}

// disassembly renders statements around the PC, marking the current
// instruction and any breakpoints
func (t *TUI) disassembly() string {
	m := t.debugger.Machine
	pc := m.Registers.PC

	start := pc
	if start >= m.Memory.Config.TextBase+20 {
		start -= 20
	} else {
		start = m.Memory.Config.TextBase
	}

	var out string
	addr := start
	for i := 0; i < 24; i++ {
		stmt := m.Memory.StatementAt(addr)
		if stmt == nil {
			addr += 4
			continue
		}
		marker := "  "
		if addr == pc {
			marker = "=>"
		}
		bp := " "
		for _, b := range t.debugger.Sim.Breakpoints() {
			if b == addr {
				bp = "*"
			}
		}
		out += fmt.Sprintf("%s%s %s\n", marker, bp, stmt.String())
		addr += 4
	}
	return out
}
