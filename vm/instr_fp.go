package vm

import "math"

var (
	opsFFF  = []OperandType{OperandFPRegister, OperandFPRegister, OperandFPRegister}
	opsFF   = []OperandType{OperandFPRegister, OperandFPRegister}
	opsRF   = []OperandType{OperandRegister, OperandFPRegister}
	opsFMem = []OperandType{
		OperandFPRegister, OperandOffset16, OperandLeftParen, OperandRegister, OperandRightParen,
	}
	opsCFF = []OperandType{OperandInteger3, OperandFPRegister, OperandFPRegister}
	opsB   = []OperandType{OperandBranchLabel}
	opsCB  = []OperandType{OperandInteger3, OperandBranchLabel}
)

// convertToWord implements the float-to-word conversions. An invalid
// operation (NaN or out of range) produces math.MaxInt32 instead of
// raising an exception.
func convertToWord(value float64, round func(float64) float64) uint32 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return math.MaxInt32
	}
	r := round(value)
	if r > math.MaxInt32 || r < math.MinInt32 {
		return math.MaxInt32
	}
	return uint32(int32(r))
}

// singleOp declares a one-source single-precision operation
func (s *InstructionSet) singleOp(mnemonic, example, pattern string, fn func(float64) float64) {
	s.basic(mnemonic, example, opsFF, pattern,
		func(m *Machine, st *Statement) error {
			v := float64(m.Cop1.GetSingle(int(st.Operands[1])))
			m.SetCop1Single(int(st.Operands[0]), float32(fn(v)))
			return nil
		})
}

// doubleOp declares a one-source double-precision operation
func (s *InstructionSet) doubleOp(mnemonic, example, pattern string, fn func(float64) float64) {
	s.basic(mnemonic, example, opsFF, pattern,
		func(m *Machine, st *Statement) error {
			v, err := m.Cop1.GetDouble(int(st.Operands[1]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			return m.SetCop1Double(int(st.Operands[0]), fn(v))
		})
}

// singleArith declares a two-source single-precision operation
func (s *InstructionSet) singleArith(mnemonic, example, pattern string, fn func(a, b float32) float32) {
	s.basic(mnemonic, example, opsFFF, pattern,
		func(m *Machine, st *Statement) error {
			a := m.Cop1.GetSingle(int(st.Operands[1]))
			b := m.Cop1.GetSingle(int(st.Operands[2]))
			m.SetCop1Single(int(st.Operands[0]), fn(a, b))
			return nil
		})
}

// doubleArith declares a two-source double-precision operation
func (s *InstructionSet) doubleArith(mnemonic, example, pattern string, fn func(a, b float64) float64) {
	s.basic(mnemonic, example, opsFFF, pattern,
		func(m *Machine, st *Statement) error {
			a, err := m.Cop1.GetDouble(int(st.Operands[1]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			b, err := m.Cop1.GetDouble(int(st.Operands[2]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			return m.SetCop1Double(int(st.Operands[0]), fn(a, b))
		})
}

// singleCompare declares both arities of a single-precision compare
func (s *InstructionSet) singleCompare(mnemonic, pattern0, patternN string, fn func(a, b float32) bool) {
	s.basic(mnemonic, mnemonic+" $f0, $f1", opsFF, pattern0,
		func(m *Machine, st *Statement) error {
			m.SetCop1Condition(0, fn(m.Cop1.GetSingle(int(st.Operands[0])), m.Cop1.GetSingle(int(st.Operands[1]))))
			return nil
		})
	s.basic(mnemonic, mnemonic+" 1, $f0, $f1", opsCFF, patternN,
		func(m *Machine, st *Statement) error {
			m.SetCop1Condition(int(st.Operands[0]),
				fn(m.Cop1.GetSingle(int(st.Operands[1])), m.Cop1.GetSingle(int(st.Operands[2]))))
			return nil
		})
}

// doubleCompare declares both arities of a double-precision compare
func (s *InstructionSet) doubleCompare(mnemonic, pattern0, patternN string, fn func(a, b float64) bool) {
	s.basic(mnemonic, mnemonic+" $f2, $f4", opsFF, pattern0,
		func(m *Machine, st *Statement) error {
			a, err := m.Cop1.GetDouble(int(st.Operands[0]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			b, err := m.Cop1.GetDouble(int(st.Operands[1]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			m.SetCop1Condition(0, fn(a, b))
			return nil
		})
	s.basic(mnemonic, mnemonic+" 1, $f2, $f4", opsCFF, patternN,
		func(m *Machine, st *Statement) error {
			a, err := m.Cop1.GetDouble(int(st.Operands[1]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			b, err := m.Cop1.GetDouble(int(st.Operands[2]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			m.SetCop1Condition(int(st.Operands[0]), fn(a, b))
			return nil
		})
}

func (s *InstructionSet) addFloat() {
	// Arithmetic
	s.singleArith("add.s", "add.s $f0, $f1, $f2", "010001 10000 ttttt sssss fffff 000000",
		func(a, b float32) float32 { return a + b })
	s.doubleArith("add.d", "add.d $f2, $f4, $f6", "010001 10001 ttttt sssss fffff 000000",
		func(a, b float64) float64 { return a + b })
	s.singleArith("sub.s", "sub.s $f0, $f1, $f2", "010001 10000 ttttt sssss fffff 000001",
		func(a, b float32) float32 { return a - b })
	s.doubleArith("sub.d", "sub.d $f2, $f4, $f6", "010001 10001 ttttt sssss fffff 000001",
		func(a, b float64) float64 { return a - b })
	s.singleArith("mul.s", "mul.s $f0, $f1, $f2", "010001 10000 ttttt sssss fffff 000010",
		func(a, b float32) float32 { return a * b })
	s.doubleArith("mul.d", "mul.d $f2, $f4, $f6", "010001 10001 ttttt sssss fffff 000010",
		func(a, b float64) float64 { return a * b })
	s.singleArith("div.s", "div.s $f0, $f1, $f2", "010001 10000 ttttt sssss fffff 000011",
		func(a, b float32) float32 { return a / b })
	s.doubleArith("div.d", "div.d $f2, $f4, $f6", "010001 10001 ttttt sssss fffff 000011",
		func(a, b float64) float64 { return a / b })

	// Unary operations
	s.singleOp("sqrt.s", "sqrt.s $f0, $f1", "010001 10000 00000 sssss fffff 000100", math.Sqrt)
	s.doubleOp("sqrt.d", "sqrt.d $f2, $f4", "010001 10001 00000 sssss fffff 000100", math.Sqrt)
	s.singleOp("abs.s", "abs.s $f0, $f1", "010001 10000 00000 sssss fffff 000101", math.Abs)
	s.doubleOp("abs.d", "abs.d $f2, $f4", "010001 10001 00000 sssss fffff 000101", math.Abs)
	s.singleOp("mov.s", "mov.s $f0, $f1", "010001 10000 00000 sssss fffff 000110",
		func(v float64) float64 { return v })
	s.doubleOp("mov.d", "mov.d $f2, $f4", "010001 10001 00000 sssss fffff 000110",
		func(v float64) float64 { return v })
	s.singleOp("neg.s", "neg.s $f0, $f1", "010001 10000 00000 sssss fffff 000111",
		func(v float64) float64 { return -v })
	s.doubleOp("neg.d", "neg.d $f2, $f4", "010001 10001 00000 sssss fffff 000111",
		func(v float64) float64 { return -v })

	// Float-to-word conversions; invalid operations yield MaxInt32
	toWord := func(mnemonic, pattern string, double bool, round func(float64) float64) {
		s.basic(mnemonic, mnemonic+" $f0, $f1", opsFF, pattern,
			func(m *Machine, st *Statement) error {
				var v float64
				if double {
					var err error
					v, err = m.Cop1.GetDouble(int(st.Operands[1]))
					if err != nil {
						return NewException(ExceptionReservedInstruction, "%v", err)
					}
				} else {
					v = float64(m.Cop1.GetSingle(int(st.Operands[1])))
				}
				m.SetCop1Word(int(st.Operands[0]), convertToWord(v, round))
				return nil
			})
	}
	toWord("cvt.w.s", "010001 10000 00000 sssss fffff 100100", false, math.Trunc)
	toWord("cvt.w.d", "010001 10001 00000 sssss fffff 100100", true, math.Trunc)
	toWord("trunc.w.s", "010001 10000 00000 sssss fffff 001101", false, math.Trunc)
	toWord("trunc.w.d", "010001 10001 00000 sssss fffff 001101", true, math.Trunc)
	toWord("round.w.s", "010001 10000 00000 sssss fffff 001100", false, math.Round)
	toWord("round.w.d", "010001 10001 00000 sssss fffff 001100", true, math.Round)
	toWord("floor.w.s", "010001 10000 00000 sssss fffff 001111", false, math.Floor)
	toWord("floor.w.d", "010001 10001 00000 sssss fffff 001111", true, math.Floor)
	toWord("ceil.w.s", "010001 10000 00000 sssss fffff 001110", false, math.Ceil)
	toWord("ceil.w.d", "010001 10001 00000 sssss fffff 001110", true, math.Ceil)

	// Precision conversions
	s.basic("cvt.s.d", "cvt.s.d $f0, $f2", opsFF, "010001 10001 00000 sssss fffff 100000",
		func(m *Machine, st *Statement) error {
			v, err := m.Cop1.GetDouble(int(st.Operands[1]))
			if err != nil {
				return NewException(ExceptionReservedInstruction, "%v", err)
			}
			m.SetCop1Single(int(st.Operands[0]), float32(v))
			return nil
		})
	s.basic("cvt.d.s", "cvt.d.s $f2, $f0", opsFF, "010001 10000 00000 sssss fffff 100001",
		func(m *Machine, st *Statement) error {
			v := m.Cop1.GetSingle(int(st.Operands[1]))
			return m.SetCop1Double(int(st.Operands[0]), float64(v))
		})
	s.basic("cvt.s.w", "cvt.s.w $f0, $f1", opsFF, "010001 10100 00000 sssss fffff 100000",
		func(m *Machine, st *Statement) error {
			m.SetCop1Single(int(st.Operands[0]), float32(int32(m.Cop1.GetWord(int(st.Operands[1])))))
			return nil
		})
	s.basic("cvt.d.w", "cvt.d.w $f2, $f1", opsFF, "010001 10100 00000 sssss fffff 100001",
		func(m *Machine, st *Statement) error {
			return m.SetCop1Double(int(st.Operands[0]), float64(int32(m.Cop1.GetWord(int(st.Operands[1])))))
		})

	// Compares
	s.singleCompare("c.eq.s",
		"010001 10000 sssss fffff 00000 110010",
		"010001 10000 ttttt sssss fff 00 110010",
		func(a, b float32) bool { return a == b })
	s.singleCompare("c.lt.s",
		"010001 10000 sssss fffff 00000 111100",
		"010001 10000 ttttt sssss fff 00 111100",
		func(a, b float32) bool { return a < b })
	s.singleCompare("c.le.s",
		"010001 10000 sssss fffff 00000 111110",
		"010001 10000 ttttt sssss fff 00 111110",
		func(a, b float32) bool { return a <= b })
	s.doubleCompare("c.eq.d",
		"010001 10001 sssss fffff 00000 110010",
		"010001 10001 ttttt sssss fff 00 110010",
		func(a, b float64) bool { return a == b })
	s.doubleCompare("c.lt.d",
		"010001 10001 sssss fffff 00000 111100",
		"010001 10001 ttttt sssss fff 00 111100",
		func(a, b float64) bool { return a < b })
	s.doubleCompare("c.le.d",
		"010001 10001 sssss fffff 00000 111110",
		"010001 10001 ttttt sssss fff 00 111110",
		func(a, b float64) bool { return a <= b })

	// Condition branches
	s.basic("bc1t", "bc1t label", opsB, "010001 01000 000 0 1 ffffffffffffffff",
		func(m *Machine, st *Statement) error {
			if m.Cop1.GetCondition(0) {
				m.ProcessJump(branchTarget(st, st.Operands[0]))
			}
			return nil
		})
	s.basic("bc1t", "bc1t 1, label", opsCB, "010001 01000 fff 0 1 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if m.Cop1.GetCondition(int(st.Operands[0])) {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})
	s.basic("bc1f", "bc1f label", opsB, "010001 01000 000 0 0 ffffffffffffffff",
		func(m *Machine, st *Statement) error {
			if !m.Cop1.GetCondition(0) {
				m.ProcessJump(branchTarget(st, st.Operands[0]))
			}
			return nil
		})
	s.basic("bc1f", "bc1f 1, label", opsCB, "010001 01000 fff 0 0 ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			if !m.Cop1.GetCondition(int(st.Operands[0])) {
				m.ProcessJump(branchTarget(st, st.Operands[1]))
			}
			return nil
		})

	// Moves between register files
	s.basic("mfc1", "mfc1 $t1, $f0", opsRF, "010001 00000 fffff sssss 00000 000000",
		func(m *Machine, st *Statement) error {
			m.SetRegister(int(st.Operands[0]), m.Cop1.GetWord(int(st.Operands[1])))
			return nil
		})
	s.basic("mtc1", "mtc1 $t1, $f0", opsRF, "010001 00100 fffff sssss 00000 000000",
		func(m *Machine, st *Statement) error {
			m.SetCop1Word(int(st.Operands[1]), m.Registers.Get(int(st.Operands[0])))
			return nil
		})

	// Loads and stores
	s.basic("lwc1", "lwc1 $f0, -100($t1)", opsFMem,
		"110001 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			value, err := m.Memory.GetWord(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			m.SetCop1Word(int(st.Operands[0]), value)
			return nil
		})
	s.basic("swc1", "swc1 $f0, -100($t1)", opsFMem,
		"111001 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			return m.StoreWord(effectiveAddress(m, st), m.Cop1.GetWord(int(st.Operands[0])))
		})
	s.basic("ldc1", "ldc1 $f2, -100($t1)", opsFMem,
		"110101 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			fr := int(st.Operands[0])
			if fr%2 != 0 {
				return NewException(ExceptionReservedInstruction, "ldc1 requires an even register, got $f%d", fr)
			}
			value, err := m.Memory.GetDoubleword(effectiveAddress(m, st), true)
			if err != nil {
				return err
			}
			high, low := LongToTwoWords(value)
			m.SetCop1Word(fr, low)
			m.SetCop1Word(fr+1, high)
			return nil
		})
	s.basic("sdc1", "sdc1 $f2, -100($t1)", opsFMem,
		"111101 ttttt fffff ssssssssssssssss",
		func(m *Machine, st *Statement) error {
			fr := int(st.Operands[0])
			if fr%2 != 0 {
				return NewException(ExceptionReservedInstruction, "sdc1 requires an even register, got $f%d", fr)
			}
			value := TwoWordsToLong(m.Cop1.GetWord(fr+1), m.Cop1.GetWord(fr))
			return m.StoreDoubleword(effectiveAddress(m, st), value)
		})
}
