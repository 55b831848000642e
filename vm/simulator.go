package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RunState is the simulator's state machine
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StatePaused
	StateTerminated
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("RunState(%d)", s)
}

// UnlimitedSpeed disables run-speed throttling
const UnlimitedSpeed time.Duration = 0

// noPendingDevice marks the empty external-interrupt cell
const noPendingDevice = -1

// Simulator interprets assembled programs against a Machine. The run
// loop is meant to live on a dedicated worker goroutine; control
// requests (pause, stop, queued state changes, the external-interrupt
// cell) are read at the safe point at the top of each step.
type Simulator struct {
	Machine *Machine
	Events  *EventDispatcher

	mu    sync.Mutex
	state RunState

	breakpoints map[uint32]bool

	// StepDelay throttles the loop; UnlimitedSpeed disables both the
	// throttle and per-step UI events
	StepDelay time.Duration

	pauseRequested atomic.Bool
	stopRequested  atomic.Bool

	// single-slot external interrupt cell; any goroutine may set it
	pendingDevice atomic.Int32

	// queued state-change callbacks from observers, applied at the
	// safe point after each instruction
	changes chan func(*Machine)

	// termination bookkeeping
	terminationErr error
	exitCode       int32
}

// NewSimulator creates a simulator over a machine
func NewSimulator(machine *Machine) *Simulator {
	s := &Simulator{
		Machine:     machine,
		Events:      NewEventDispatcher(),
		breakpoints: make(map[uint32]bool),
		changes:     make(chan func(*Machine), 16),
	}
	s.pendingDevice.Store(noPendingDevice)
	return s
}

// State returns the current run state
func (s *Simulator) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetBreakpoint arms a breakpoint at a text address
func (s *Simulator) SetBreakpoint(address uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[address] = true
}

// ClearBreakpoint disarms a breakpoint
func (s *Simulator) ClearBreakpoint(address uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, address)
}

// Breakpoints lists armed breakpoint addresses
func (s *Simulator) Breakpoints() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]uint32, 0, len(s.breakpoints))
	for a := range s.breakpoints {
		addrs = append(addrs, a)
	}
	sortUint32s(addrs)
	return addrs
}

func (s *Simulator) hasBreakpoint(address uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakpoints[address]
}

// Pause asks the worker to pause at the next safe point. Ignored when
// not running.
func (s *Simulator) Pause() {
	s.pauseRequested.Store(true)
}

// Stop asks the worker to terminate at the next safe point. Idempotent;
// a stop after termination is ignored.
func (s *Simulator) Stop() {
	s.stopRequested.Store(true)
}

// RaiseExternalInterrupt sets the pending-device cell. The worker
// reads and clears it at the top of its next step.
func (s *Simulator) RaiseExternalInterrupt(device int32) {
	s.pendingDevice.Store(device)
}

// QueueStateChange schedules a mutation to run on the worker between
// instructions (observer requests such as register pokes from the UI)
func (s *Simulator) QueueStateChange(fn func(*Machine)) {
	select {
	case s.changes <- fn:
	default:
		// queue full: apply directly on the caller's goroutine, with no
		// lock held, as a last resort; callers are UI-paced so this
		// path is effectively unreachable
		fn(s.Machine)
	}
}

// ExitCode returns the program's exit code after termination
func (s *Simulator) ExitCode() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// TerminationError returns the runtime error that ended the program,
// or nil after a clean exit
func (s *Simulator) TerminationError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminationErr
}

func (s *Simulator) setState(state RunState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run interprets instructions until termination, pause, stop, a
// breakpoint or the step budget. It blocks its caller, which is
// expected to be a dedicated worker goroutine; returns the final
// state. maxSteps <= 0 means no budget.
func (s *Simulator) Run(maxSteps int) RunState {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return StateRunning
	}
	if s.state == StateTerminated {
		s.mu.Unlock()
		return StateTerminated
	}
	s.state = StateRunning
	s.mu.Unlock()

	s.pauseRequested.Store(false)
	s.stopRequested.Store(false)

	m := s.Machine
	s.Events.Dispatch(EventNotice{Event: EventStart, PC: m.Registers.PC})

	steps := 0
	for {
		// Safe point: control requests, throttle, external interrupts
		if s.stopRequested.Load() {
			s.terminate(nil, m.ExitCode())
			return StateTerminated
		}
		if s.pauseRequested.Load() {
			s.pause("pause requested")
			return StatePaused
		}
		if s.StepDelay > UnlimitedSpeed {
			time.Sleep(s.StepDelay)
		}

		outcome := s.step()
		steps++

		s.drainChanges()

		switch outcome {
		case stepTerminated:
			return StateTerminated
		case stepContinue:
			if s.StepDelay > UnlimitedSpeed {
				s.Events.Dispatch(EventNotice{Event: EventStep, PC: m.Registers.PC})
			}
		}

		if s.hasBreakpoint(m.Registers.PC) {
			s.pause(fmt.Sprintf("breakpoint at %s", FormatHex(m.Registers.PC)))
			return StatePaused
		}
		if maxSteps > 0 && steps >= maxSteps {
			s.pause("step budget exhausted")
			return StatePaused
		}
	}
}

// stepOutcome is the per-step result inside the run loop
type stepOutcome int

const (
	stepContinue stepOutcome = iota
	stepTerminated
)

// step executes one instruction including exception routing and
// delayed-branch bookkeeping
func (s *Simulator) step() stepOutcome {
	m := s.Machine

	// External interrupt dispatch
	if device := s.pendingDevice.Swap(noPendingDevice); device != noPendingDevice {
		status := m.Cop0.Get(Cop0Status)
		if status&StatusIE != 0 && status&StatusEXL == 0 {
			m.currentStatement = nil
			cause := m.Cop0.Get(Cop0Cause) | 1<<(8+uint(device)&7)
			m.Cop0.SetRaw(Cop0Cause, cause)
			m.Cop0.SetRaw(Cop0Status, status|StatusEXL)
			m.Cop0.SetRaw(Cop0EPC, m.Registers.PC)
			m.Registers.PC = m.Memory.Config.ExceptionHandler
		}
	}

	pc := m.Registers.PC

	// Jump to zero terminates (conventional program end)
	if pc == 0 {
		s.terminate(nil, m.ExitCode())
		return stepTerminated
	}

	stmt, err := m.Memory.FetchStatement(pc, true)
	if err != nil {
		if exc, ok := err.(*Exception); ok {
			return s.raise(exc, pc)
		}
		s.terminate(err, 0)
		return stepTerminated
	}
	if stmt == nil {
		// Ran past the last instruction
		s.terminate(nil, m.ExitCode())
		return stepTerminated
	}

	m.currentStatement = stmt
	scheduled := m.jumpScheduled
	target := m.jumpTarget
	m.jumpScheduled = false
	m.inDelaySlot = scheduled

	// PC points at the next instruction while this one executes
	m.Registers.PC = pc + 4

	before := m.Backstep.size
	execErr := stmt.Instruction.Execute(m, stmt)
	if execErr == nil && m.Backstep.size == before {
		// Every executed instruction leaves a record so back-stepping
		// can step over instructions with no state effects
		m.record(BackStepNone, 0, 0)
	}

	if execErr != nil {
		if exit, ok := execErr.(*ExitError); ok {
			s.terminate(nil, exit.Code)
			return stepTerminated
		}
		if exc, ok := execErr.(*Exception); ok {
			return s.raise(exc, stmt.Address)
		}
		s.terminate(execErr, 0)
		return stepTerminated
	}

	// Delayed branch: the scheduled target takes effect after its
	// delay slot has executed
	if scheduled {
		old := m.Registers.PC
		m.Registers.PC = target
		m.record(BackStepPC, 0, old)
	}

	m.currentStatement = nil
	m.inDelaySlot = false
	return stepContinue
}

// raise routes a runtime exception through the MIPS exception vector.
// Without a handler installed there the program terminates, reporting
// the faulting statement's address.
func (s *Simulator) raise(exc *Exception, pc uint32) stepOutcome {
	m := s.Machine

	oldStatus, oldCause, oldEPC, oldBadVAddr := m.Cop0.InstallException(exc, pc)
	m.record(BackStepCop0, Cop0Status, oldStatus)
	m.record(BackStepCop0, Cop0Cause, oldCause)
	m.record(BackStepCop0, Cop0EPC, oldEPC)
	if exc.BadAddress {
		m.record(BackStepCop0, Cop0BadVAddr, oldBadVAddr)
	}

	vector := m.Memory.Config.ExceptionHandler
	if m.Memory.StatementAt(vector) != nil {
		old := m.Registers.PC
		m.Registers.PC = vector
		m.record(BackStepPC, 0, old)
		m.currentStatement = nil
		m.inDelaySlot = false
		m.jumpScheduled = false
		return stepContinue
	}

	s.terminate(fmt.Errorf("runtime exception at %s: %s", FormatHex(pc), exc.Message), 0)
	return stepTerminated
}

func (s *Simulator) drainChanges() {
	for {
		select {
		case fn := <-s.changes:
			fn(s.Machine)
		default:
			return
		}
	}
}

func (s *Simulator) pause(reason string) {
	s.setState(StatePaused)
	s.Events.Dispatch(EventNotice{Event: EventPause, PC: s.Machine.Registers.PC, Reason: reason})
}

func (s *Simulator) terminate(err error, code int32) {
	s.mu.Lock()
	s.state = StateTerminated
	s.terminationErr = err
	s.exitCode = code
	s.mu.Unlock()

	reason := "exit"
	if err != nil {
		reason = err.Error()
	}
	s.Events.Dispatch(EventNotice{Event: EventFinish, PC: s.Machine.Registers.PC, Reason: reason, ExitCode: code})
}

// StepOne executes exactly one instruction from a paused or idle
// state. Used by the debugger's step command.
func (s *Simulator) StepOne() RunState {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateRunning {
		state := s.state
		s.mu.Unlock()
		return state
	}
	s.state = StateRunning
	s.mu.Unlock()

	outcome := s.step()
	s.drainChanges()
	if outcome == stepTerminated {
		return StateTerminated
	}
	s.setState(StatePaused)
	s.Events.Dispatch(EventNotice{Event: EventStep, PC: s.Machine.Registers.PC})
	return StatePaused
}

// Reset returns the simulator to IDLE over a freshly reset machine.
// Stop the worker first; no user code runs during reset.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Machine.Reset()
	s.state = StateIdle
	s.terminationErr = nil
	s.exitCode = 0
	s.pendingDevice.Store(noPendingDevice)
	s.pauseRequested.Store(false)
	s.stopRequested.Store(false)
}
