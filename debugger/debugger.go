// Package debugger provides the interactive text-mode debugger: a
// command interpreter over the simulator plus a tview-based TUI.
package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/myaltaccountsthis/mars-red/parser"
	"github.com/myaltaccountsthis/mars-red/vm"
)

// Debugger interprets debugging commands against a simulator. Output
// accumulates in a buffer drained by the front end after each command.
type Debugger struct {
	Sim     *vm.Simulator
	Machine *vm.Machine

	// ResolveSymbol maps a label to an address (wired from the
	// assembler's symbol tables)
	ResolveSymbol func(name string) (uint32, bool)

	History     *CommandHistory
	LastCommand string

	Output strings.Builder
	Quit   bool
}

// NewDebugger creates a debugger over a simulator
func NewDebugger(sim *vm.Simulator) *Debugger {
	return &Debugger{
		Sim:     sim,
		Machine: sim.Machine,
		History: NewCommandHistory(1000),
	}
}

// GetOutput returns and clears the output buffer
func (d *Debugger) GetOutput() string {
	out := d.Output.String()
	d.Output.Reset()
	return out
}

// Printf writes formatted output to the output buffer
func (d *Debugger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(&d.Output, format, args...)
}

// ResolveAddress parses a label, hex address or decimal address
func (d *Debugger) ResolveAddress(s string) (uint32, error) {
	if d.ResolveSymbol != nil {
		if addr, ok := d.ResolveSymbol(s); ok {
			return addr, nil
		}
	}
	if num := parser.RegisterNumberFromName(s); num >= 0 {
		return d.Machine.Registers.Get(num), nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if strings.HasPrefix(strings.ToLower(s), "0x") && err == nil {
		return uint32(v), nil
	}
	dec, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("cannot resolve address %q", s)
	}
	return uint32(dec), nil
}

// ExecuteCommand processes one command line; an empty line repeats
// the previous command
func (d *Debugger) ExecuteCommand(cmdLine string) error {
	cmdLine = strings.TrimSpace(cmdLine)
	if cmdLine == "" {
		cmdLine = d.LastCommand
	}
	if cmdLine == "" {
		return nil
	}
	d.History.Add(cmdLine)
	d.LastCommand = cmdLine

	parts := strings.Fields(cmdLine)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	return d.handleCommand(cmd, args)
}

func (d *Debugger) handleCommand(cmd string, args []string) error {
	switch cmd {
	case "step", "s":
		return d.cmdStep(args)
	case "continue", "c", "run", "r":
		return d.cmdContinue()
	case "back", "undo":
		return d.cmdBack(args)
	case "break", "b":
		return d.cmdBreak(args)
	case "delete", "d":
		return d.cmdDelete(args)
	case "breakpoints", "bp":
		return d.cmdBreakpoints()
	case "print", "p":
		return d.cmdPrint(args)
	case "x", "examine":
		return d.cmdExamine(args)
	case "registers", "regs":
		return d.cmdRegisters()
	case "list", "l":
		return d.cmdList(args)
	case "reset":
		d.Sim.Reset()
		d.Printf("machine reset\n")
		return nil
	case "quit", "q", "exit":
		d.Quit = true
		return nil
	case "help", "h", "?":
		d.cmdHelp()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (d *Debugger) cmdStep(args []string) error {
	count := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("bad step count %q", args[0])
		}
		count = n
	}
	for i := 0; i < count; i++ {
		state := d.Sim.StepOne()
		if state == vm.StateTerminated {
			d.printTermination()
			return nil
		}
	}
	d.printLocation()
	return nil
}

func (d *Debugger) cmdContinue() error {
	state := d.Sim.Run(0)
	switch state {
	case vm.StateTerminated:
		d.printTermination()
	case vm.StatePaused:
		d.printLocation()
	}
	return nil
}

func (d *Debugger) cmdBack(args []string) error {
	count := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("bad back-step count %q", args[0])
		}
		count = n
	}
	stepped := 0
	for i := 0; i < count; i++ {
		if !d.Machine.StepBack() {
			break
		}
		stepped++
	}
	if stepped == 0 {
		d.Printf("nothing to undo\n")
		return nil
	}
	d.Printf("stepped back %d instruction(s)\n", stepped)
	d.printLocation()
	return nil
}

func (d *Debugger) cmdBreak(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: break <label|address>")
	}
	addr, err := d.ResolveAddress(args[0])
	if err != nil {
		return err
	}
	d.Sim.SetBreakpoint(addr)
	d.Printf("breakpoint set at %s\n", vm.FormatHex(addr))
	return nil
}

func (d *Debugger) cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <label|address>")
	}
	addr, err := d.ResolveAddress(args[0])
	if err != nil {
		return err
	}
	d.Sim.ClearBreakpoint(addr)
	d.Printf("breakpoint cleared at %s\n", vm.FormatHex(addr))
	return nil
}

func (d *Debugger) cmdBreakpoints() error {
	addrs := d.Sim.Breakpoints()
	if len(addrs) == 0 {
		d.Printf("no breakpoints\n")
		return nil
	}
	for _, addr := range addrs {
		d.Printf("  %s", vm.FormatHex(addr))
		if stmt := d.Machine.Memory.StatementAt(addr); stmt != nil {
			d.Printf("  %s", stmt.Assembly())
		}
		d.Printf("\n")
	}
	return nil
}

func (d *Debugger) cmdPrint(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: print <$register|label>")
	}
	name := args[0]
	if value, ok := d.Machine.Registers.GetByName(strings.ToLower(name)); ok {
		d.Printf("%s = %s (%d)\n", name, vm.FormatHex(value), int32(value))
		return nil
	}
	if num := parser.FPRegisterNumberFromName(name); num >= 0 {
		d.Printf("%s = %s (%g)\n", name,
			vm.FormatHex(d.Machine.Cop1.GetWord(num)), d.Machine.Cop1.GetSingle(num))
		return nil
	}
	addr, err := d.ResolveAddress(name)
	if err != nil {
		return err
	}
	word, err := d.Machine.Memory.GetWord(addr&^3, false)
	if err != nil {
		return err
	}
	d.Printf("%s: %s = %s (%d)\n", name, vm.FormatHex(addr), vm.FormatHex(word), int32(word))
	return nil
}

func (d *Debugger) cmdExamine(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: x <label|address> [words]")
	}
	addr, err := d.ResolveAddress(args[0])
	if err != nil {
		return err
	}
	count := 4
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("bad word count %q", args[1])
		}
		count = n
	}
	addr &^= 3
	for i := 0; i < count; i++ {
		word, err := d.Machine.Memory.GetWord(addr, false)
		if err != nil {
			return err
		}
		d.Printf("%s: %s\n", vm.FormatHex(addr), vm.FormatHex(word))
		addr += 4
	}
	return nil
}

func (d *Debugger) cmdRegisters() error {
	d.Output.WriteString(FormatRegisters(d.Machine))
	return nil
}

func (d *Debugger) cmdList(args []string) error {
	addr := d.Machine.Registers.PC
	if len(args) > 0 {
		a, err := d.ResolveAddress(args[0])
		if err != nil {
			return err
		}
		addr = a
	}
	addr &^= 3
	for i := 0; i < 10; i++ {
		stmt := d.Machine.Memory.StatementAt(addr)
		if stmt == nil {
			break
		}
		marker := "  "
		if addr == d.Machine.Registers.PC {
			marker = "=>"
		}
		d.Printf("%s %s\n", marker, stmt.String())
		addr += 4
	}
	return nil
}

func (d *Debugger) printLocation() {
	pc := d.Machine.Registers.PC
	if stmt := d.Machine.Memory.StatementAt(pc); stmt != nil {
		d.Printf("at %s: %s\n", vm.FormatHex(pc), stmt.Assembly())
		return
	}
	d.Printf("at %s\n", vm.FormatHex(pc))
}

func (d *Debugger) printTermination() {
	if err := d.Sim.TerminationError(); err != nil {
		d.Printf("program terminated: %v\n", err)
		return
	}
	d.Printf("program exited with code %d\n", d.Sim.ExitCode())
}

func (d *Debugger) cmdHelp() {
	d.Printf(`commands:
  step [n]            execute n instructions (default 1)
  continue            run until breakpoint or exit
  back [n]            undo n instructions via the back-step log
  break <addr|label>  set a breakpoint
  delete <addr|label> clear a breakpoint
  breakpoints         list breakpoints
  print <reg|label>   show a register or memory word
  x <addr> [n]        examine n memory words
  registers           show all registers
  list [addr]         disassemble from an address (default PC)
  reset               reset the machine
  quit                leave the debugger
`)
}

// FormatRegisters renders the GPR file, PC, HI and LO in four columns
func FormatRegisters(m *vm.Machine) string {
	var sb strings.Builder
	regs := m.Registers.Snapshot()
	for row := 0; row < 8; row++ {
		for col := 0; col < 4; col++ {
			num := row + 8*col
			fmt.Fprintf(&sb, "%-5s %s   ", parser.RegisterName(num), vm.FormatHex(regs[num]))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "pc    %s   hi    %s   lo    %s\n",
		vm.FormatHex(m.Registers.PC), vm.FormatHex(m.Registers.HI), vm.FormatHex(m.Registers.LO))
	return sb.String()
}
