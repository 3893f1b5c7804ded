package clinit

// Fake is an in-memory VM used by the javapool clinit-report demo
// command and by this package's tests, standing in for a real JVM
// binding that would read bytecode over JVMTI.
type Fake struct {
	// Bodies maps each method to the instructions found in its body.
	Bodies map[Method][]Instruction

	// Reinit lists classes whose static state needs reinitialization.
	Reinit map[string]bool

	// Safe lists methods safe to re-walk (reinit_safe).
	Safe map[Method]bool

	// ClassLoaders lists classes with a user-defined class loader;
	// classes absent from this set are treated as system classes
	// (HasClassLoader returns false).
	ClassLoaders map[string]bool

	// ChildSets maps a class to its direct known subclasses.
	ChildSets map[string][]string

	// Impls maps (class, methodName, methodSignature) to the Method
	// actually implemented there, for LookupMethod.
	Impls map[implKey]Method

	// Called records every class whose initializer CallClassInitializer
	// actually ran, in call order.
	Called []string

	// FailOnCall, if set, names classes whose CallClassInitializer should
	// return an error instead of succeeding (simulating a clinit
	// exception, per call_clinit's HAS_PENDING_EXCEPTION path).
	FailOnCall map[string]bool
}

type implKey struct {
	class, name, sig string
}

// NewFake builds an empty Fake ready to be populated by the caller.
func NewFake() *Fake {
	return &Fake{
		Bodies:       make(map[Method][]Instruction),
		Reinit:       make(map[string]bool),
		Safe:         make(map[Method]bool),
		ClassLoaders: make(map[string]bool),
		ChildSets:    make(map[string][]string),
		Impls:        make(map[implKey]Method),
		FailOnCall:   make(map[string]bool),
	}
}

func (f *Fake) Instructions(m Method) []Instruction { return f.Bodies[m] }

func (f *Fake) ShouldReinit(class string) bool { return f.Reinit[class] }

func (f *Fake) ReinitSafe(m Method) bool { return f.Safe[m] }

func (f *Fake) ClassInitializer(class string) Method {
	return Method{Class: class, Name: "<clinit>", Signature: "()V"}
}

func (f *Fake) HasClassLoader(class string) bool { return f.ClassLoaders[class] }

func (f *Fake) Children(class string) []string { return f.ChildSets[class] }

func (f *Fake) LookupMethod(class, methodName, methodSignature string) (Method, bool) {
	m, ok := f.Impls[implKey{class, methodName, methodSignature}]
	return m, ok
}

// AddImplementation records that class implements methodName/
// methodSignature as m, for LookupMethod to resolve later.
func (f *Fake) AddImplementation(class, methodName, methodSignature string, m Method) {
	f.Impls[implKey{class, methodName, methodSignature}] = m
}

func (f *Fake) CallClassInitializer(class string) error {
	f.Called = append(f.Called, class)
	if f.FailOnCall[class] {
		return errClinitException(class)
	}
	return nil
}

type errClinitException string

func (e errClinitException) Error() string { return "clinit exception in " + string(e) }
