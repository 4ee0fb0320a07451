// Package bytecode defines the compiled module format the engine reads.
//
// A module (.bcm) is a msgpack document holding type definitions, method
// bodies and, optionally, embedded debug symbols. Symbols may also live in a
// sidecar file (.sym) next to the module. Instruction operands reference
// methods and types by name, the same way a linker-resolved IL stream does.
package bytecode
