package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/myaltaccountsthis/mars-red/assembler"
	"github.com/myaltaccountsthis/mars-red/config"
	"github.com/myaltaccountsthis/mars-red/debugger"
	"github.com/myaltaccountsthis/mars-red/vm"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

const assemblyFailedExit = 1

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version information")
		showHelp    = flag.Bool("help", false, "Show help information")

		delayedBranching = flag.Bool("db", false, "Enable delayed branching")
		bigEndian        = flag.Bool("be", false, "Assemble and simulate big-endian")
		extendedMode     = flag.Bool("pseudo", true, "Permit extended (pseudo) instructions")
		warningsErrors   = flag.Bool("ae", false, "Treat assembler warnings as errors")
		assembleOnly     = flag.Bool("a", false, "Assemble only, do not simulate")
		selfModifying    = flag.Bool("smc", false, "Allow self-modifying code")
		memConfigName    = flag.String("mc", "", "Memory configuration (default, compact)")
		dumpSpec         = flag.String("dump", "", "Dump a segment after assembly: SEGMENT,FORMAT,FILE")
		maxSteps         = flag.Int("max-steps", 0, "Maximum instruction count before pausing (0 = unlimited)")
		debugMode        = flag.Bool("debug", false, "Start the TUI debugger instead of running")
		programArgs      = flag.String("pa", "", "Arguments passed to the simulated program")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("mars-red %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		os.Exit(0)
	}
	if *showHelp || flag.NArg() == 0 {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	// Flags override the config file where given
	mcName := cfg.Simulator.MemoryConfig
	if *memConfigName != "" {
		mcName = *memConfigName
	}
	memConfig, err := vm.ConfigurationByName(mcName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(assemblyFailedExit)
	}

	machine := vm.NewMachine(memConfig)
	machine.DelayedBranching = *delayedBranching || cfg.Simulator.DelayedBranching
	machine.Memory.LittleEndian = !(*bigEndian || cfg.Simulator.BigEndian)
	machine.Memory.SelfModifyingCode = *selfModifying || cfg.Simulator.SelfModifyingCode
	if cfg.Simulator.BackstepCapacity > 0 {
		machine.Backstep = vm.NewBackStepper(cfg.Simulator.BackstepCapacity)
	}

	asm := assembler.NewAssembler(machine)
	asm.ExtendedMode = *extendedMode && cfg.Assembler.ExtendedMode

	errs := asm.Assemble(*warningsErrors || cfg.Assembler.WarningsAreErrors, flag.Args()...)
	if warnings := errs.PrintWarnings(); warnings != "" {
		fmt.Fprint(os.Stderr, warnings)
	}
	if errs.HasErrors() {
		fmt.Fprint(os.Stderr, errs.Error())
		fmt.Fprintf(os.Stderr, "assembly failed: %s\n", errs.Summary())
		os.Exit(assemblyFailedExit)
	}

	if *dumpSpec != "" {
		if err := dumpSegment(asm, *dumpSpec); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(assemblyFailedExit)
		}
	}

	if *assembleOnly {
		os.Exit(0)
	}

	// Start at a "main" label when one exists: the global one first,
	// otherwise any file's local one
	if addr, ok := asm.SymbolAddress("main"); ok {
		machine.Registers.PC = addr
	}

	if *programArgs != "" {
		if err := writeProgramArguments(machine, strings.Fields(*programArgs)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(assemblyFailedExit)
		}
	}

	sim := vm.NewSimulator(machine)
	defer sim.Events.Close()

	if *debugMode {
		dbg := debugger.NewDebugger(sim)
		dbg.ResolveSymbol = asm.SymbolAddress
		tui := debugger.NewTUI(dbg)
		if err := tui.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	state := sim.Run(*maxSteps)
	if state == vm.StatePaused {
		fmt.Fprintf(os.Stderr, "\nsimulation paused at %s after reaching the step limit\n",
			vm.FormatHex(machine.Registers.PC))
		os.Exit(0)
	}
	if err := sim.TerminationError(); err != nil {
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
		os.Exit(1)
	}
	os.Exit(int(sim.ExitCode()))
}

// dumpSegment parses SEGMENT,FORMAT,FILE and writes the dump
func dumpSegment(asm *assembler.Assembler, spec string) error {
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return fmt.Errorf("dump spec %q must be SEGMENT,FORMAT,FILE", spec)
	}
	f, err := os.Create(parts[2]) // #nosec G304 -- user-selected dump file
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return asm.DumpSegment(parts[0], parts[1], f)
}

// writeProgramArguments places the argument strings and vector just
// below the stack pointer and sets $a0/$a1 to argc/argv
func writeProgramArguments(m *vm.Machine, args []string) error {
	sp := m.Registers.Get(vm.RegSP)

	// String data first, highest address downward
	addrs := make([]uint32, len(args))
	cursor := sp
	for i := len(args) - 1; i >= 0; i-- {
		cursor -= uint32(len(args[i]) + 1)
		addrs[i] = cursor
		for k := 0; k < len(args[i]); k++ {
			if _, err := m.Memory.StoreByte(cursor+uint32(k), uint32(args[i][k]), false); err != nil {
				return err
			}
		}
		if _, err := m.Memory.StoreByte(cursor+uint32(len(args[i])), 0, false); err != nil {
			return err
		}
	}

	// Pointer vector, word aligned below the strings
	cursor &^= 3
	cursor -= uint32(4 * len(args))
	vector := cursor
	for i, addr := range addrs {
		if _, err := m.Memory.StoreWord(vector+uint32(4*i), addr, false); err != nil {
			return err
		}
	}

	m.Registers.Set(vm.RegSP, vector-4)
	m.Registers.Set(vm.RegA0, uint32(len(args)))
	m.Registers.Set(vm.RegA1, vector)
	return nil
}

func printHelp() {
	fmt.Println("mars-red - MIPS32 assembler and simulator")
	fmt.Println()
	fmt.Println("Usage: mars-red [options] file.asm [more.asm ...]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -a              Assemble only, do not simulate")
	fmt.Println("  -db             Enable delayed branching")
	fmt.Println("  -be             Big-endian memory")
	fmt.Println("  -pseudo=false   Reject extended (pseudo) instructions")
	fmt.Println("  -ae             Treat assembler warnings as errors")
	fmt.Println("  -smc            Allow self-modifying code")
	fmt.Println("  -mc NAME        Memory configuration: default, compact")
	fmt.Println("  -dump S,F,FILE  Dump segment S in format F after assembly")
	fmt.Println("                  (formats: hextext, binarytext, binary, ascii)")
	fmt.Println("  -max-steps N    Pause after N instructions")
	fmt.Println("  -pa \"ARGS\"      Pass arguments to the simulated program")
	fmt.Println("  -debug          Start the TUI debugger")
	fmt.Println("  -version        Show version")
	fmt.Println()
	fmt.Println("The exit status is the code passed to the exit syscall, 0 on a")
	fmt.Println("clean exit, or nonzero when assembly fails.")
}
