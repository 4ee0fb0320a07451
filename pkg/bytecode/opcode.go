package bytecode

// OpCode is the mnemonic of a single instruction.
type OpCode string

const (
	OpNop      OpCode = "nop"
	OpRet      OpCode = "ret"
	OpLdarg    OpCode = "ldarg"
	OpLdloc    OpCode = "ldloc"
	OpStloc    OpCode = "stloc"
	OpLdstr    OpCode = "ldstr"
	OpLdcI4    OpCode = "ldc.i4"
	OpLdfld    OpCode = "ldfld"
	OpStfld    OpCode = "stfld"
	OpBr       OpCode = "br"
	OpBrtrue   OpCode = "brtrue"
	OpPop      OpCode = "pop"
	OpNewarr   OpCode = "newarr"
	OpCall     OpCode = "call"
	OpCallvirt OpCode = "callvirt"
	OpNewobj   OpCode = "newobj"
	OpBox      OpCode = "box"
	OpUnbox    OpCode = "unbox"
	OpUnboxAny OpCode = "unbox.any"
)

// String returns the mnemonic.
func (o OpCode) String() string { return string(o) }

// IsCall reports whether the instruction transfers control to a method
// operand.
func (o OpCode) IsCall() bool {
	switch o {
	case OpCall, OpCallvirt, OpNewobj:
		return true
	}
	return false
}

// IsConversion reports whether the instruction converts between value and
// reference representations.
func (o OpCode) IsConversion() bool {
	switch o {
	case OpBox, OpUnbox, OpUnboxAny:
		return true
	}
	return false
}

// IsOfInterest reports whether the scanner should decode the instruction.
func (o OpCode) IsOfInterest() bool {
	return o.IsCall() || o.IsConversion()
}
