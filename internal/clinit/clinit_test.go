package clinit

import "testing"

func TestAnalyzerRunsRootClinit(t *testing.T) {
	vm := NewFake()
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = nil
	vm.Reinit["App"] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(vm.Called) != 1 || vm.Called[0] != "App" {
		t.Errorf("Called = %v, want [App]", vm.Called)
	}
}

func TestAnalyzerRunTwiceIsRejected(t *testing.T) {
	vm := NewFake()
	vm.Bodies[Method{Class: "App", Name: "<clinit>", Signature: "()V"}] = nil
	vm.Reinit["App"] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := a.Run("App"); err == nil {
		t.Error("expected second Run of the same class to be rejected as already visited")
	}
}

func TestGetStaticTriggersDependentReinit(t *testing.T) {
	vm := NewFake()
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = []Instruction{{Op: GetStatic, FieldOwner: "Cache"}}
	vm.Bodies[Method{Class: "Cache", Name: "<clinit>", Signature: "()V"}] = nil
	vm.Reinit["App"] = true
	vm.Reinit["Cache"] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Cache is reached while analyzing App's body, so it must be
	// initialized before App itself finishes (App calls CallClassInitializer
	// only after analyzeMethod returns).
	want := []string{"Cache", "App"}
	if len(vm.Called) != 2 || vm.Called[0] != want[0] || vm.Called[1] != want[1] {
		t.Errorf("Called = %v, want %v", vm.Called, want)
	}
}

func TestGetStaticSkipsClassesNotFlaggedForReinit(t *testing.T) {
	vm := NewFake()
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = []Instruction{{Op: GetStatic, FieldOwner: "Stable"}}
	vm.Reinit["App"] = true
	// Stable is intentionally absent from vm.Reinit.

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(vm.Called) != 1 || vm.Called[0] != "App" {
		t.Errorf("Called = %v, want [App] (Stable should not be reinitialized)", vm.Called)
	}
}

func TestInvokeVirtualResolvesThroughClassLoaderBoundSubclasses(t *testing.T) {
	vm := NewFake()
	sig := "()Ljava/lang/Object;"
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = []Instruction{{
		Op:              InvokeVirtual,
		InterfaceBase:   "Registry",
		MethodName:      "lookup",
		MethodSignature: sig,
	}}

	impl := Method{Class: "CachingRegistry", Name: "lookup", Signature: sig}
	vm.Bodies[impl] = []Instruction{{Op: GetStatic, FieldOwner: "Cache"}}
	vm.Bodies[Method{Class: "Cache", Name: "<clinit>", Signature: "()V"}] = nil

	vm.ClassLoaders["Registry"] = true
	vm.ClassLoaders["CachingRegistry"] = true
	vm.ChildSets["Registry"] = []string{"CachingRegistry"}
	vm.AddImplementation("CachingRegistry", "lookup", sig, impl)

	vm.Reinit["App"] = true
	vm.Reinit["Cache"] = true
	vm.Safe[impl] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"Cache", "App"}
	if len(vm.Called) != 2 || vm.Called[0] != want[0] || vm.Called[1] != want[1] {
		t.Errorf("Called = %v, want %v", vm.Called, want)
	}
	if len(a.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", a.Warnings)
	}
}

func TestFindImplementationsStopsAtSystemClasses(t *testing.T) {
	vm := NewFake()
	sig := "()V"
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = []Instruction{{
		Op:              InvokeInterface,
		InterfaceBase:   "java.lang.Runnable",
		MethodName:      "run",
		MethodSignature: sig,
	}}
	vm.Reinit["App"] = true
	// java.lang.Runnable is deliberately absent from ClassLoaders: it's a
	// system interface, so the walk must not descend into it at all.

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(vm.Called) != 1 || vm.Called[0] != "App" {
		t.Errorf("Called = %v, want [App]", vm.Called)
	}
	if len(a.Warnings) != 0 {
		t.Errorf("expected no warnings when a system base class is skipped, got %v", a.Warnings)
	}
}

func TestUnresolvedFieldOwnerIsWarned(t *testing.T) {
	vm := NewFake()
	root := Method{Class: "App", Name: "<clinit>", Signature: "()V"}
	vm.Bodies[root] = []Instruction{{Op: GetStatic}}
	vm.Reinit["App"] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.Warnings) != 1 {
		t.Errorf("Warnings = %v, want exactly one warning about the unresolved field owner", a.Warnings)
	}
}

func TestClinitExceptionIsRecordedAsWarningNotError(t *testing.T) {
	vm := NewFake()
	vm.Bodies[Method{Class: "App", Name: "<clinit>", Signature: "()V"}] = nil
	vm.Reinit["App"] = true
	vm.FailOnCall["App"] = true

	a := NewAnalyzer(vm)
	if err := a.Run("App"); err != nil {
		t.Fatalf("Run should not itself fail on a clinit exception, got: %v", err)
	}
	if len(a.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want exactly one", a.Warnings)
	}
	if len(vm.Called) != 1 || vm.Called[0] != "App" {
		t.Errorf("Called = %v, want [App] (the call still happens even though it fails)", vm.Called)
	}
}
