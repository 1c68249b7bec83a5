package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	verified bool

	calls []string
	args  [][]string
}

func (f *fakeExec) isVerified() bool { return f.verified }
func (f *fakeExec) Connect(ctx context.Context) error {
	f.calls = append(f.calls, "connect")
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.verified = true
	return nil
}
func (f *fakeExec) Status(ctx context.Context) error {
	f.calls = append(f.calls, "status")
	return nil
}
func (f *fakeExec) Attach(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "attach")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Fetch(ctx context.Context, args []string) error {
	f.calls = append(f.calls, "fetch")
	f.args = append(f.args, args)
	return nil
}
func (f *fakeExec) Reconcile(ctx context.Context) error {
	f.calls = append(f.calls, "reconcile")
	return nil
}
func (f *fakeExec) Watch(ctx context.Context) error {
	f.calls = append(f.calls, "watch")
	return nil
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.verified = false
	return nil
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"connect",
		"login",
		"help",
		"attach doc.pdf -e",
		"status",
		"reconcile",
		"foobar",
		"logout",
		"exit",
	}, "\n"))

	exec := &fakeExec{}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	wantOrder := []string{"connect", "login", "attach", "status", "reconcile", "logout"}
	idx := 0
	for _, c := range exec.calls {
		if idx < len(wantOrder) && c == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Fatalf("commands order mismatch: got %v, want subseq %v", exec.calls, wantOrder)
	}

	if len(exec.args) == 0 || strings.Join(exec.args[0], " ") != "doc.pdf -e" {
		t.Fatalf("attach args not forwarded: %v", exec.args)
	}
}

func TestRunREPL_EmptyLinesAndQuit(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("\n   \nquit\n")
	exec := &fakeExec{verified: true}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "s" }, sc)

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
