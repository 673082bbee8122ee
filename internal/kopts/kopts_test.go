package kopts

import (
	"fmt"
	"testing"
)

func TestParse_KeysAndValues(t *testing.T) {
	o := Parse(`notrack log=debug name="serial one" tick='a b' hz=100`)

	if !o.Has("notrack") {
		t.Fatal("notrack flag missing")
	}
	if _, ok := o.String("notrack"); ok {
		t.Fatal("bare flag should have no string value")
	}

	if v, ok := o.String("log"); !ok || v != "debug" {
		t.Fatalf("log = %q, %v", v, ok)
	}
	if v, ok := o.String("name"); !ok || v != "serial one" {
		t.Fatalf("name = %q, %v", v, ok)
	}
	if v, ok := o.String("tick"); !ok || v != "a b" {
		t.Fatalf("tick = %q, %v", v, ok)
	}
	if n, ok := o.Uint("hz"); !ok || n != 100 {
		t.Fatalf("hz = %d, %v", n, ok)
	}
}

func TestParse_EmptyAndWhitespace(t *testing.T) {
	for _, s := range []string{"", "   ", "\t\n"} {
		o := Parse(s)
		if o.Has("") {
			t.Fatalf("parse(%q) produced an empty key", s)
		}
	}
}

func TestParse_UnterminatedQuote(t *testing.T) {
	o := Parse(`name="dangling`)
	if v, ok := o.String("name"); !ok || v != "dangling" {
		t.Fatalf("name = %q, %v", v, ok)
	}
}

func TestParse_LastValueWins(t *testing.T) {
	o := Parse("hz=10 hz=250")
	if n, _ := o.Uint("hz"); n != 250 {
		t.Fatalf("hz = %d, want 250", n)
	}
}

func TestFlag(t *testing.T) {
	o := Parse("a b=true c=no d=banana")

	tests := []struct {
		key    string
		want   bool
		wantOK bool
	}{
		{"a", true, true},
		{"b", true, true},
		{"c", false, true},
		{"d", false, false},
		{"absent", false, false},
	}
	for _, tt := range tests {
		got, ok := o.Flag(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Flag(%q) = %v, %v, want %v, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestUint_InvalidWarnsOnce(t *testing.T) {
	o := Parse("hz=fast")

	var warnings []string
	o.SetWarnFunc(func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	for i := 0; i < 3; i++ {
		if _, ok := o.Uint("hz"); ok {
			t.Fatal("invalid uint parsed")
		}
	}
	if len(warnings) != 1 {
		t.Fatalf("warned %d times: %v", len(warnings), warnings)
	}
}

func TestGroup(t *testing.T) {
	o := Parse("log=warn log.sched=debug log.serial=err logz=1")

	g := o.Group("log")
	if len(g) != 2 || g["sched"] != "debug" || g["serial"] != "err" {
		t.Fatalf("group = %v", g)
	}
}
