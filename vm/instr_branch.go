package vm

var (
	opsRRB = []OperandType{OperandRegister, OperandRegister, OperandBranchLabel}
	opsRB  = []OperandType{OperandRegister, OperandBranchLabel}
	opsJ   = []OperandType{OperandJumpLabel}
)

// branchTarget computes the destination of a taken branch from the
// encoded 16-bit displacement
func branchTarget(st *Statement, offset uint32) uint32 {
	return st.Address + 4 + SignExtend16(offset)<<2
}

// jumpTarget computes the destination of j/jal from the 26-bit region
// field
func jumpTarget(st *Statement, field uint32) uint32 {
	return (st.Address+4)&0xf0000000 | field<<2
}

// returnAddress is the value linked into $ra: the next instruction,
// or the one after the delay slot when delayed branching is on
func returnAddress(m *Machine, st *Statement) uint32 {
	ra := st.Address + 4
	if m.DelayedBranching {
		ra += 4
	}
	return ra
}

func (s *InstructionSet) addBranch() {
	s.basic("beq", "beq $t1, $t2, label", opsRRB,
		"000100 fffff sssss tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) == m.Registers.Get(int(st.Operands[1])) {
				m.ProcessJump(branchTarget(st, st.Operands[2]))
			}
			return nil
		})

	s.basic("bne", "bne $t1, $t2, label", opsRRB,
		"000101 fffff sssss tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) != m.Registers.Get(int(st.Operands[1])) {
				m.ProcessJump(branchTarget(st, st.Operands[2]))
			}
			return nil
		})

	s.basic("blez", "blez $t1, label", opsRB,
		"000110 fffff 00000 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) <= 0 {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("bgtz", "bgtz $t1, label", opsRB,
		"000111 fffff 00000 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) > 0 {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("bltz", "bltz $t1, label", opsRB,
		"000001 fffff 00000 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) < 0 {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("bgez", "bgez $t1, label", opsRB,
		"000001 fffff 00001 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) >= 0 {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("bltzal", "bltzal $t1, label", opsRB,
		"000001 fffff 10000 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) < 0 {
				m.SetRegister(RegRA, returnAddress(m, st))
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("bgezal", "bgezal $t1, label", opsRB,
		"000001 fffff 10001 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) >= 0 {
				m.SetRegister(RegRA, returnAddress(m, st))
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	s.basic("j", "j label", opsJ,
		"000010 ffffffffffffffffffffffffff",
		func(m *Machine, st *Statement) error {
			m.ProcessJump(jumpTarget(st, st.Operands[0]))
			return nil
		})

	s.basic("jal", "jal label", opsJ,
		"000011 ffffffffffffffffffffffffff",
		func(m *Machine, st *Statement) error {
			m.SetRegister(RegRA, returnAddress(m, st))
			m.ProcessJump(jumpTarget(st, st.Operands[0]))
			return nil
		})

	s.basic("jr", "jr $t1", opsR,
		"000000 fffff 00000 00000 00000 001000",
		func(m *Machine, st *Statement) error {
			m.ProcessJump(m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	s.basic("jalr", "jalr $t1, $t2", opsRR,
		"000000 sssss 00000 fffff 00000 001001",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), returnAddress(m, st))
			m.ProcessJump(m.Registers.Get(int(st.Operands[1])))
			return nil
		})

	s.basic("jalr", "jalr $t1", opsR,
		"000000 fffff 00000 11111 00000 001001",
		func(m *Machine, st *Statement) error {
			m.SetRegister(RegRA, returnAddress(m, st))
			m.ProcessJump(m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	// System and trap instructions

	s.basic("nop", "nop", nil,
		"000000 00000 00000 00000 00000 000000",
		func(m *Machine, st *Statement) error {
			return nil
		})

	s.basic("syscall", "syscall", nil,
		"000000 00000 00000 00000 00000 001100",
		func(m *Machine, st *Statement) error {
			return m.ProcessSyscall(int(m.Registers.Get(RegV0)))
		})

	s.basic("break", "break", nil,
		"000000 00000 00000 00000 00000 001101",
		func(m *Machine, st *Statement) error {
			return NewException(ExceptionBreakpoint, "break instruction")
		})

	s.basic("teq", "teq $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110100",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) == m.Registers.Get(int(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: teq")
			}
			return nil
		})

	s.basic("tne", "tne $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110110",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) != m.Registers.Get(int(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: tne")
			}
			return nil
		})

	s.basic("tge", "tge $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110000",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) >= int32(m.Registers.Get(int(st.Operands[1]))) {
				return NewException(ExceptionTrap, "trap: tge")
			}
			return nil
		})

	s.basic("tgeu", "tgeu $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110001",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) >= m.Registers.Get(int(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: tgeu")
			}
			return nil
		})

	s.basic("tlt", "tlt $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110010",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) < int32(m.Registers.Get(int(st.Operands[1]))) {
				return NewException(ExceptionTrap, "trap: tlt")
			}
			return nil
		})

	s.basic("tltu", "tltu $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 110011",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) < m.Registers.Get(int(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: tltu")
			}
			return nil
		})

	s.basic("teqi", "teqi $t1, -100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01100 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) == SignExtend16(st.Operands[1]) {
				return NewException(ExceptionTrap, "trap: teqi")
			}
			return nil
		})

	s.basic("tnei", "tnei $t1, -100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01110 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) != SignExtend16(st.Operands[1]) {
				return NewException(ExceptionTrap, "trap: tnei")
			}
			return nil
		})

	s.basic("tgei", "tgei $t1, -100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01000 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) >= int32(SignExtend16(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: tgei")
			}
			return nil
		})

	s.basic("tgeiu", "tgeiu $t1, 100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01001 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) >= SignExtend16(st.Operands[1]) {
				return NewException(ExceptionTrap, "trap: tgeiu")
			}
			return nil
		})

	s.basic("tlti", "tlti $t1, -100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01010 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if int32(m.Registers.Get(int(st.Operands[0]))) < int32(SignExtend16(st.Operands[1])) {
				return NewException(ExceptionTrap, "trap: tlti")
			}
			return nil
		})

	s.basic("tltiu", "tltiu $t1, 100", []OperandType{OperandRegister, OperandInteger16},
		"000001 fffff 01011 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if m.Registers.Get(int(st.Operands[0])) < SignExtend16(st.Operands[1]) {
				return NewException(ExceptionTrap, "trap: tltiu")
			}
			return nil
		})

	// Coprocessor 0 access and exception return

	s.basic("mfc0", "mfc0 $t1, $12", opsRR,
		"010000 00000 fffff sssss 00000 000000",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), m.Cop0.Get(int(st.Operands[1])))
			return nil
		})

	s.basic("mtc0", "mtc0 $t1, $12", opsRR,
		"010000 00100 fffff sssss 00000 000000",
		func(m *Machine, st *Statement) error {
			m.SetCop0(int(st.Operands[1]), m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	s.basic("eret", "eret", nil,
		"010000 10000 00000 00000 00000 011000",
		func(m *Machine, st *Statement) error {
			// Clear EXL and return to the interrupted instruction
			m.SetCop0(Cop0Status, m.Cop0.Get(Cop0Status)&^uint32(StatusEXL))
			old := m.Registers.PC
			m.Registers.PC = m.Cop0.Get(Cop0EPC)
			m.record(BackStepPC, 0, old)
			return nil
		})
}
