// Package clinit implements C7: the static-initializer dependency walk
// that decides which classes a reused VM process must re-initialize
// before running a new invocation's program. It is a direct port of
// clinit_analysis.cpp's bytecode traversal (getstatic/putstatic/getfield/
// putfield/invokestatic/invokespecial/invokevirtual/invokeinterface),
// generalized behind a VM interface since a Go process has no access to
// live JVM bytecode — a real binding would implement VM against JVMTI or
// an embedded bytecode reader; this package supplies a deterministic
// in-memory VM for tests and the javapool clinit-report demo.
package clinit

import "fmt"

// Op names the bytecodes analyze cares about, mirroring the switch in
// clinit_analysis.cpp's ClinitAnalysis::analyze(Method*).
type Op int

const (
	GetStatic Op = iota
	PutStatic
	GetField
	PutField
	InvokeStatic
	InvokeSpecial
	InvokeVirtual
	InvokeInterface
)

// Method identifies one method the way the original's (InstanceKlass*,
// Method*) pair does: by owning class plus name/signature, since Go has
// no direct analogue of a JVM Method* identity.
type Method struct {
	Class     string
	Name      string
	Signature string
}

func (m Method) String() string { return fmt.Sprintf("%s.%s%s", m.Class, m.Name, m.Signature) }

// Instruction is one bytecode reference encountered while walking a
// method's body.
type Instruction struct {
	Op Op

	// FieldOwner is the resolved class of a get/put static/field's
	// constant-pool reference (handle_get_put's ik).
	FieldOwner string

	// InvokeTarget is the statically resolved target of an invokestatic
	// or invokespecial (handle_invoke_static_special's kh/mh).
	InvokeTarget Method

	// InterfaceBase, MethodName, MethodSignature describe an invokevirtual
	// or invokeinterface site before implementations are resolved
	// (handle_invoke_virtual_interface).
	InterfaceBase   string
	MethodName      string
	MethodSignature string
}

// VM is the set of JVM-introspection primitives the analysis needs. A
// production binding implements this against a real JVM (e.g. over
// JVMTI); Fake, below, is a deterministic in-memory implementation.
type VM interface {
	// Instructions returns the get/put/invoke bytecode references found
	// in m's body, in program order (clinit_analysis.cpp's BytecodeStream
	// walk).
	Instructions(m Method) []Instruction

	// ShouldReinit reports whether class's static state was touched by a
	// prior invocation and therefore needs clinit re-run before reuse
	// (the VM-exposed should_reinit flag).
	ShouldReinit(class string) bool

	// ReinitSafe reports whether re-analyzing m's body is safe — system
	// classes/methods can trip constant-pool invariants the original
	// guards against with reinit_safe (handle_invoke_virtual_interface,
	// handle_invoke_static_special).
	ReinitSafe(m Method) bool

	// ClassInitializer returns the Method identifying class's <clinit>.
	ClassInitializer(class string) Method

	// HasClassLoader reports whether class has a user-defined class
	// loader. find_implementations stops descending into the system
	// class hierarchy once this is false, since "pretty much everything"
	// could implement a system method and the search would be unbounded.
	HasClassLoader(class string) bool

	// Children returns class's direct known subclasses (its child_set).
	// find_implementations' recursive walk over these lives in this
	// package, so VM only needs to expose the direct child set.
	Children(class string) []string

	// LookupMethod resolves methodName/methodSignature as actually
	// implemented by class (possibly inherited), mirroring
	// LinkResolver::lookup_method_in_klasses. Returns ok=false if class
	// has no such method.
	LookupMethod(class, methodName, methodSignature string) (Method, bool)

	// CallClassInitializer actually runs class's <clinit> (call_clinit).
	// Errors are swallowed by the original (it clears the pending
	// exception and continues); Analyzer does the same, but still
	// records the error in Analyzer.Warnings.
	CallClassInitializer(class string) error
}

// Analyzer runs the traversal with its own visited-method set, mirroring
// ClinitAnalysis::visited_method_set's role as "process-wide" state that
// makes repeated analysis of the same method a no-op (spec §4.7: the
// traversal must be idempotent and must terminate in the presence of
// cycles).
type Analyzer struct {
	vm      VM
	visited map[Method]bool

	// Warnings collects non-fatal issues encountered during the walk
	// (unresolved symbols, clinit exceptions) — the original prints these
	// to tty and continues; callers here can surface them through
	// poollog at the Logged bucket instead of dropping them silently.
	Warnings []error
}

// NewAnalyzer builds an Analyzer with a fresh visited set (the
// equivalent of calling ClinitAnalysis::initialize once per VM process).
func NewAnalyzer(vm VM) *Analyzer {
	return &Analyzer{vm: vm, visited: make(map[Method]bool)}
}

// Run is the entry point: ik must already satisfy ShouldReinit (the
// original asserts this), analyzes its class initializer's body, then
// calls the class initializer itself.
func (a *Analyzer) Run(class string) error {
	ci := a.vm.ClassInitializer(class)
	if a.visited[ci] {
		return fmt.Errorf("clinit: %s already visited in this run", class)
	}
	a.visited[ci] = true
	return a.analyzeClass(class)
}

// analyzeClass reproduces ClinitAnalysis::analyze(InstanceKlass*): walk
// the class initializer's body, then actually invoke it.
func (a *Analyzer) analyzeClass(class string) error {
	ci := a.vm.ClassInitializer(class)
	a.analyzeMethod(ci)
	if err := a.vm.CallClassInitializer(class); err != nil {
		a.Warnings = append(a.Warnings, fmt.Errorf("clinit exception in %s: %w", class, err))
	}
	return nil
}

// analyzeMethod reproduces ClinitAnalysis::analyze(Method*): iterate the
// method's get/put/invoke instructions and dispatch each to its handler.
func (a *Analyzer) analyzeMethod(m Method) {
	for _, instr := range a.vm.Instructions(m) {
		switch instr.Op {
		case GetStatic, PutStatic, GetField, PutField:
			a.handleGetPut(instr)
		case InvokeStatic, InvokeSpecial:
			a.handleInvokeStaticSpecial(instr)
		case InvokeVirtual, InvokeInterface:
			a.handleInvokeVirtualInterface(instr)
		}
	}
}

// handleGetPut reproduces ClinitAnalysis::handle_get_put: if the
// referenced field's owning class needs reinit and its clinit hasn't
// been visited yet, analyze that class.
func (a *Analyzer) handleGetPut(instr Instruction) {
	if instr.FieldOwner == "" {
		a.Warnings = append(a.Warnings, fmt.Errorf("get/put with unresolved field owner"))
		return
	}
	if !a.vm.ShouldReinit(instr.FieldOwner) {
		return
	}
	ci := a.vm.ClassInitializer(instr.FieldOwner)
	if a.visited[ci] {
		return
	}
	a.visited[ci] = true
	if err := a.analyzeClass(instr.FieldOwner); err != nil {
		a.Warnings = append(a.Warnings, err)
	}
}

// handleInvokeStaticSpecial reproduces
// ClinitAnalysis::handle_invoke_static_special: the resolved target's
// owning class is reinitialized if needed, and the target method itself
// is walked if the VM reports that method reinit_safe.
func (a *Analyzer) handleInvokeStaticSpecial(instr Instruction) {
	target := instr.InvokeTarget
	if target.Class == "" {
		a.Warnings = append(a.Warnings, fmt.Errorf("invokestatic/invokespecial with unresolved target"))
		return
	}
	if a.vm.ShouldReinit(target.Class) {
		ci := a.vm.ClassInitializer(target.Class)
		if !a.visited[ci] {
			a.visited[ci] = true
			if err := a.analyzeClass(target.Class); err != nil {
				a.Warnings = append(a.Warnings, err)
			}
		}
	}
	if a.vm.ReinitSafe(target) && !a.visited[target] {
		a.visited[target] = true
		a.analyzeMethod(target)
	}
}

// handleInvokeVirtualInterface reproduces
// ClinitAnalysis::handle_invoke_virtual_interface: resolve every concrete
// override of the call site across the base class's subclass tree, and
// for each one apply the same reinit/visit logic as the static case.
func (a *Analyzer) handleInvokeVirtualInterface(instr Instruction) {
	if instr.InterfaceBase == "" {
		a.Warnings = append(a.Warnings, fmt.Errorf("invokevirtual/invokeinterface with unresolved base class"))
		return
	}

	var impls []Method
	a.findImplementations(&impls, instr.InterfaceBase, instr.MethodName, instr.MethodSignature)

	for _, impl := range impls {
		if a.vm.ShouldReinit(impl.Class) {
			ci := a.vm.ClassInitializer(impl.Class)
			if !a.visited[ci] {
				a.visited[ci] = true
				if err := a.analyzeClass(impl.Class); err != nil {
					a.Warnings = append(a.Warnings, err)
				}
			}
		}
		// system classes/methods cause issues with constant pool
		// invariants; only walk methods the VM reports reinit_safe.
		if a.vm.ReinitSafe(impl) && !a.visited[impl] {
			a.visited[impl] = true
			a.analyzeMethod(impl)
		}
	}
}

// findImplementations reproduces ClinitAnalysis::find_implementations's
// recursive child_set descent: stop at classes with no user class
// loader (find_implementations returns early for system root classes,
// since "pretty much everything" might implement them and the search
// would be unbounded), otherwise recurse into every known child, and at
// a leaf (a class with no known children) resolve the call target
// actually implemented there.
func (a *Analyzer) findImplementations(out *[]Method, class, methodName, methodSignature string) {
	if !a.vm.HasClassLoader(class) {
		return
	}
	if children := a.vm.Children(class); len(children) > 0 {
		for _, child := range children {
			a.findImplementations(out, child, methodName, methodSignature)
		}
		return
	}
	m, ok := a.vm.LookupMethod(class, methodName, methodSignature)
	if !ok {
		a.Warnings = append(a.Warnings, fmt.Errorf("no implementation of %s%s on %s", methodName, methodSignature, class))
		return
	}
	for _, existing := range *out {
		if existing == m {
			return
		}
	}
	*out = append(*out, m)
}
