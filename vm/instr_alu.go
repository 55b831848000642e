package vm

// Operand shapes shared by the table declarations
var (
	opsRRR = []OperandType{OperandRegister, OperandRegister, OperandRegister}
	opsRR  = []OperandType{OperandRegister, OperandRegister}
	opsR   = []OperandType{OperandRegister}
	opsRRI = []OperandType{OperandRegister, OperandRegister, OperandInteger16}
	opsRRU = []OperandType{OperandRegister, OperandRegister, OperandInteger16U}
	opsRR5 = []OperandType{OperandRegister, OperandRegister, OperandInteger5}
)

// signedAddOverflows reports two's-complement overflow of a+b
func signedAddOverflows(a, b, sum int32) bool {
	return (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0)
}

// signedSubOverflows reports two's-complement overflow of a-b
func signedSubOverflows(a, b, diff int32) bool {
	return (a >= 0) != (b >= 0) && (diff >= 0) != (a >= 0)
}

func (s *InstructionSet) addALU() {
	s.basic("add", "add $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100000",
		func(m *Machine, st *Statement) error {
			a := int32(m.Registers.Get(int(st.Operands[1])))
			b := int32(m.Registers.Get(int(st.Operands[2])))
			sum := a + b
			if signedAddOverflows(a, b, sum) {
				return NewException(ExceptionArithmeticOverflow, "arithmetic overflow in add")
			}
			m.SetRegister(int(st.Operands[0]), uint32(sum))
			return nil
		})

	s.basic("addu", "addu $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100001",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))+m.Registers.Get(int(st.Operands[2])))
			return nil
		})

	s.basic("sub", "sub $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100010",
		func(m *Machine, st *Statement) error {
			a := int32(m.Registers.Get(int(st.Operands[1])))
			b := int32(m.Registers.Get(int(st.Operands[2])))
			diff := a - b
			if signedSubOverflows(a, b, diff) {
				return NewException(ExceptionArithmeticOverflow, "arithmetic overflow in sub")
			}
			m.SetRegister(int(st.Operands[0]), uint32(diff))
			return nil
		})

	s.basic("subu", "subu $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100011",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))-m.Registers.Get(int(st.Operands[2])))
			return nil
		})

	s.basic("addi", "addi $t1, $t2, -100", opsRRI,
		"001000 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			a := int32(m.Registers.Get(int(st.Operands[1])))
			b := int32(SignExtend16(st.Operands[2]))
			sum := a + b
			if signedAddOverflows(a, b, sum) {
				return NewException(ExceptionArithmeticOverflow, "arithmetic overflow in addi")
			}
			m.SetRegister(int(st.Operands[0]), uint32(sum))
			return nil
		})

	s.basic("addiu", "addiu $t1, $t2, -100", opsRRI,
		"001001 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))+SignExtend16(st.Operands[2]))
			return nil
		})

	// Logical operations

	s.basic("and", "and $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100100",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))&m.Registers.Get(int(st.Operands[2])))
			return nil
		})

	s.basic("or", "or $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100101",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))|m.Registers.Get(int(st.Operands[2])))
			return nil
		})

	s.basic("xor", "xor $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100110",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))^m.Registers.Get(int(st.Operands[2])))
			return nil
		})

	s.basic("nor", "nor $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 100111",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				^(m.Registers.Get(int(st.Operands[1])) | m.Registers.Get(int(st.Operands[2]))))
			return nil
		})

	s.basic("andi", "andi $t1, $t2, 100", opsRRU,
		"001100 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))&st.Operands[2])
			return nil
		})

	s.basic("ori", "ori $t1, $t2, 100", opsRRU,
		"001101 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))|st.Operands[2])
			return nil
		})

	s.basic("xori", "xori $t1, $t2, 100", opsRRU,
		"001110 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))^st.Operands[2])
			return nil
		})

	// Comparisons

	s.basic("slt", "slt $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 101010",
		func(m *Machine, st *Statement) error {
			var v uint32
			if int32(m.Registers.Get(int(st.Operands[1]))) < int32(m.Registers.Get(int(st.Operands[2]))) {
				v = 1
			}
			m.SetRegister(int(st.Operands[0]), v)
			return nil
		})

	s.basic("sltu", "sltu $t1, $t2, $t3", opsRRR,
		"000000 sssss ttttt fffff 00000 101011",
		func(m *Machine, st *Statement) error {
			var v uint32
			if m.Registers.Get(int(st.Operands[1])) < m.Registers.Get(int(st.Operands[2])) {
				v = 1
			}
			m.SetRegister(int(st.Operands[0]), v)
			return nil
		})

	s.basic("slti", "slti $t1, $t2, -100", opsRRI,
		"001010 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			var v uint32
			if int32(m.Registers.Get(int(st.Operands[1]))) < int32(SignExtend16(st.Operands[2])) {
				v = 1
			}
			m.SetRegister(int(st.Operands[0]), v)
			return nil
		})

	s.basic("sltiu", "sltiu $t1, $t2, -100", opsRRI,
		"001011 sssss fffff tttttttttttttttt",
		func(m *Machine, st *Statement) error {
			var v uint32
			if m.Registers.Get(int(st.Operands[1])) < SignExtend16(st.Operands[2]) {
				v = 1
			}
			m.SetRegister(int(st.Operands[0]), v)
			return nil
		})

	// Shifts

	s.basic("sll", "sll $t1, $t2, 10", opsRR5,
		"000000 00000 sssss fffff ttttt 000000",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))<<st.Operands[2])
			return nil
		})

	s.basic("srl", "srl $t1, $t2, 10", opsRR5,
		"000000 00000 sssss fffff ttttt 000010",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				m.Registers.Get(int(st.Operands[1]))>>st.Operands[2])
			return nil
		})

	s.basic("sra", "sra $t1, $t2, 10", opsRR5,
		"000000 00000 sssss fffff ttttt 000011",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]),
				uint32(int32(m.Registers.Get(int(st.Operands[1])))>>st.Operands[2]))
			return nil
		})

	s.basic("sllv", "sllv $t1, $t2, $t3", opsRRR,
		"000000 ttttt sssss fffff 00000 000100",
		func(m *Machine, st *Statement) error {
			sh := m.Registers.Get(int(st.Operands[2])) & 0x1f
			m.SetRegister(int(st.Operands[0]), m.Registers.Get(int(st.Operands[1]))<<sh)
			return nil
		})

	s.basic("srlv", "srlv $t1, $t2, $t3", opsRRR,
		"000000 ttttt sssss fffff 00000 000110",
		func(m *Machine, st *Statement) error {
			sh := m.Registers.Get(int(st.Operands[2])) & 0x1f
			m.SetRegister(int(st.Operands[0]), m.Registers.Get(int(st.Operands[1]))>>sh)
			return nil
		})

	s.basic("srav", "srav $t1, $t2, $t3", opsRRR,
		"000000 ttttt sssss fffff 00000 000111",
		func(m *Machine, st *Statement) error {
			sh := m.Registers.Get(int(st.Operands[2])) & 0x1f
			m.SetRegister(int(st.Operands[0]), uint32(int32(m.Registers.Get(int(st.Operands[1])))>>sh))
			return nil
		})

	// Multiply and divide

	s.basic("mult", "mult $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 011000",
		func(m *Machine, st *Statement) error {
			prod := int64(int32(m.Registers.Get(int(st.Operands[0])))) *
				int64(int32(m.Registers.Get(int(st.Operands[1]))))
			high, low := LongToTwoWords(uint64(prod))
			m.SetHI(high)
			m.SetLO(low)
			return nil
		})

	s.basic("multu", "multu $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 011001",
		func(m *Machine, st *Statement) error {
			prod := uint64(m.Registers.Get(int(st.Operands[0]))) *
				uint64(m.Registers.Get(int(st.Operands[1])))
			high, low := LongToTwoWords(prod)
			m.SetHI(high)
			m.SetLO(low)
			return nil
		})

	s.basic("mul", "mul $t1, $t2, $t3", opsRRR,
		"011100 sssss ttttt fffff 00000 000010",
		func(m *Machine, st *Statement) error {
			prod := int64(int32(m.Registers.Get(int(st.Operands[1])))) *
				int64(int32(m.Registers.Get(int(st.Operands[2]))))
			m.SetRegister(int(st.Operands[0]), uint32(prod))
			return nil
		})

	// Division by zero is silent: HI and LO are left as they were
	s.basic("div", "div $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 011010",
		func(m *Machine, st *Statement) error {
			a := int32(m.Registers.Get(int(st.Operands[0])))
			b := int32(m.Registers.Get(int(st.Operands[1])))
			if b == 0 {
				return nil
			}
			m.SetLO(uint32(a / b))
			m.SetHI(uint32(a % b))
			return nil
		})

	s.basic("divu", "divu $t1, $t2", opsRR,
		"000000 fffff sssss 00000 00000 011011",
		func(m *Machine, st *Statement) error {
			a := m.Registers.Get(int(st.Operands[0]))
			b := m.Registers.Get(int(st.Operands[1]))
			if b == 0 {
				return nil
			}
			m.SetLO(a / b)
			m.SetHI(a % b)
			return nil
		})

	s.basic("mfhi", "mfhi $t1", opsR,
		"000000 00000 00000 fffff 00000 010000",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), m.Registers.HI)
			return nil
		})

	s.basic("mflo", "mflo $t1", opsR,
		"000000 00000 00000 fffff 00000 010010",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), m.Registers.LO)
			return nil
		})

	s.basic("mthi", "mthi $t1", opsR,
		"000000 fffff 00000 00000 00000 010001",
		func(m *Machine, st *Statement) error {
			m.SetHI(m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	s.basic("mtlo", "mtlo $t1", opsR,
		"000000 fffff 00000 00000 00000 010011",
		func(m *Machine, st *Statement) error {
			m.SetLO(m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	s.basic("lui", "lui $t1, 100", []OperandType{OperandRegister, OperandInteger16U},
		"001111 00000 fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), st.Operands[1]<<16)
			return nil
		})
}
