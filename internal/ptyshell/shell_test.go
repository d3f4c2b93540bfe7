package ptyshell

import (
	"bytes"
	"strings"
	"testing"
)

func newTestShell() (*Shell, *bytes.Buffer) {
	out := &bytes.Buffer{}
	s := NewShell(Options{Stdout: out})
	return s, out
}

func TestShell_OutputObserversSeeEverythingInOrder(t *testing.T) {
	s, out := newTestShell()
	var first, second []string
	s.AddOutputObserver(func(chunk []byte) { first = append(first, string(chunk)) })
	s.AddOutputObserver(func(chunk []byte) { second = append(second, string(chunk)) })

	s.handleOutput([]byte("one"))
	s.handleOutput([]byte("two"))

	for _, got := range [][]string{first, second} {
		if strings.Join(got, ",") != "one,two" {
			t.Fatalf("observer saw %v", got)
		}
	}
	if out.String() != "onetwo" {
		t.Fatalf("terminal echo broken: %q", out.String())
	}
}

func TestShell_ObserverUnsubscribe(t *testing.T) {
	s, _ := newTestShell()
	var n int
	remove := s.AddOutputObserver(func([]byte) { n++ })
	s.handleOutput([]byte("a"))
	remove()
	s.handleOutput([]byte("b"))
	if n != 1 {
		t.Fatalf("unsubscribed observer still called, n=%d", n)
	}
}

func TestShell_AIModeSuppressesEchoButNotObservers(t *testing.T) {
	s, out := newTestShell()
	var seen bytes.Buffer
	s.AddOutputObserver(func(chunk []byte) { seen.Write(chunk) })

	s.SetAIMode(true)
	s.handleOutput([]byte("hidden"))
	if out.Len() != 0 {
		t.Fatalf("output must be suppressed in AI mode, got %q", out.String())
	}
	if seen.String() != "hidden" {
		t.Fatalf("observer must still see output, got %q", seen.String())
	}

	s.ShowPTYOutput(true)
	s.handleOutput([]byte("visible"))
	if out.String() != "visible" {
		t.Fatalf("ShowPTYOutput must lift suppression, got %q", out.String())
	}

	s.ShowPTYOutput(false)
	s.handleOutput([]byte("again"))
	if out.String() != "visible" {
		t.Fatalf("suppression must be restored, got %q", out.String())
	}

	s.SetAIMode(false)
	s.handleOutput([]byte("back"))
	if !strings.HasSuffix(out.String(), "back") {
		t.Fatalf("leaving AI mode must restore echo, got %q", out.String())
	}
}

func TestShell_AIInputRouting(t *testing.T) {
	s, _ := newTestShell()
	var got bytes.Buffer
	s.SetAIInputHandler(func(b []byte) { got.Write(b) })

	s.SetAIMode(true)
	s.routeInput([]byte("hello"))
	if got.String() != "hello" {
		t.Fatalf("AI mode input not routed to handler: %q", got.String())
	}
}

func TestShell_LineAssembly(t *testing.T) {
	s, out := newTestShell()
	s.mu.Lock()
	s.lineMode = true
	s.mu.Unlock()

	s.routeInput([]byte("yx"))
	s.routeInput([]byte{0x7f}) // backspace the x
	s.routeInput([]byte("es\r"))

	line := <-s.lineCh
	if line != "yes" {
		t.Fatalf("assembled line wrong: %q", line)
	}
	if !strings.Contains(out.String(), "\b \b") {
		t.Fatalf("backspace must erase the echoed char: %q", out.String())
	}
	s.mu.Lock()
	if s.lineMode {
		t.Fatal("line mode must end after the line completes")
	}
	s.mu.Unlock()
}

func TestShell_LineCtrlCDeclines(t *testing.T) {
	s, _ := newTestShell()
	s.mu.Lock()
	s.lineMode = true
	s.mu.Unlock()

	s.routeInput([]byte{'y', 0x03})
	if line := <-s.lineCh; line != "" {
		t.Fatalf("Ctrl-C must yield an empty line, got %q", line)
	}
}

func TestShell_WriteBeforeStartFails(t *testing.T) {
	s, _ := newTestShell()
	if err := s.Write([]byte("x")); err == nil {
		t.Fatal("expected error writing before Start")
	}
}
