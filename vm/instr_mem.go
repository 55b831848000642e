package vm

// opsMem is the offset addressing form: rt, offset(base)
var opsMem = []OperandType{
	OperandRegister, OperandOffset16, OperandLeftParen, OperandRegister, OperandRightParen,
}

// effectiveAddress computes base + sign-extended offset. The operand
// list is rt(0), offset(1), base(2).
func effectiveAddress(m *Machine, st *Statement) uint32 {
	return m.Registers.Get(int(st.Operands[2])) + SignExtend16(st.Operands[1])
}

func (s *InstructionSet) addMemory() {
	s.basic("lw", "lw $t1, -100($t2)", opsMem,
		"100011 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetWord(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), value)
			return nil
		})

	s.basic("lh", "lh $t1, -100($t2)", opsMem,
		"100001 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetHalfword(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), SignExtend16(value))
			return nil
		})

	s.basic("lhu", "lhu $t1, -100($t2)", opsMem,
		"100101 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetHalfword(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), value)
			return nil
		})

	s.basic("lb", "lb $t1, -100($t2)", opsMem,
		"100000 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetByte(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), SignExtend8(value))
			return nil
		})

	s.basic("lbu", "lbu $t1, -100($t2)", opsMem,
		"100100 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetByte(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), value)
			return nil
		})

	s.basic("sw", "sw $t1, -100($t2)", opsMem,
		"101011 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			return m.StoreWord(effectiveAddress(m, st), m.Registers.Get(int(st.Operands[0])))
		})

	s.basic("sh", "sh $t1, -100($t2)", opsMem,
		"101001 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			return m.StoreHalfword(effectiveAddress(m, st), m.Registers.Get(int(st.Operands[0]))&0xffff)
		})

	s.basic("sb", "sb $t1, -100($t2)", opsMem,
		"101000 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			return m.StoreByte(effectiveAddress(m, st), m.Registers.Get(int(st.Operands[0]))&0xff)
		})

	// Load-linked and store-conditional are modeled as plain load and
	// store: there is only one simulated processor, so the conditional
	// store always succeeds
	s.basic("ll", "ll $t1, -100($t2)", opsMem,
		"110000 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetWord(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), value)
			return nil
		})

	s.basic("sc", "sc $t1, -100($t2)", opsMem,
		"111000 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if err := m.StoreWord(effectiveAddress(m, st), m.Registers.Get(int(st.Operands[0]))); err != nil {
				return err
			}
			m.SetRegister(int(st.Operands[0]), 1)
			return nil
		})
}
