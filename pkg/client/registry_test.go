package client

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNarrow(t *testing.T) {
	tests := []struct {
		name    string
		kind    ArgKind
		in      any
		want    any
		wantErr bool
	}{
		{name: "int", kind: KindInt, in: json.Number("42"), want: int(42)},
		{name: "int8", kind: KindInt8, in: json.Number("-7"), want: int8(-7)},
		{name: "int16", kind: KindInt16, in: json.Number("300"), want: int16(300)},
		{name: "int64", kind: KindInt64, in: json.Number("9007199254740993"), want: int64(9007199254740993)},
		{name: "float32", kind: KindFloat32, in: json.Number("1.5"), want: float32(1.5)},
		{name: "float64", kind: KindFloat64, in: json.Number("2.25"), want: float64(2.25)},
		{name: "bool", kind: KindBool, in: true, want: true},
		{name: "rune", kind: KindRune, in: "x", want: 'x'},
		{name: "multibyte rune", kind: KindRune, in: "é", want: 'é'},
		{name: "string", kind: KindString, in: "hello", want: "hello"},
		{name: "int from fraction", kind: KindInt, in: json.Number("1.5"), wantErr: true},
		{name: "int from string", kind: KindInt, in: "42", wantErr: true},
		{name: "bool from number", kind: KindBool, in: json.Number("1"), wantErr: true},
		{name: "rune from long string", kind: KindRune, in: "ab", wantErr: true},
		{name: "rune from empty string", kind: KindRune, in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := narrow(tt.kind, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("narrow(%s, %v) = %v, want error", tt.kind, tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("narrow(%s, %v): %v", tt.kind, tt.in, err)
			}
			if got != tt.want {
				t.Errorf("narrow(%s, %v) = %v (%T), want %v (%T)", tt.kind, tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDecodeArgsLengthMismatch(t *testing.T) {
	_, err := decodeArgs([]ArgKind{KindInt, KindString}, []any{json.Number("1")})
	if err == nil {
		t.Fatal("decodeArgs accepted an argument count mismatch")
	}
}

func TestRegistryReplaceSameName(t *testing.T) {
	r := NewRegistry()
	calls := make([]string, 0, 2)

	if err := r.Register("fire", nil, func(*Entity, []any) { calls = append(calls, "first") }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("fire", nil, func(*Entity, []any) { calls = append(calls, "second") }); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}

	reg, ok := r.lookup("fire")
	if !ok {
		t.Fatal("lookup failed after re-registration")
	}
	reg.fn(nil, nil)
	if len(calls) != 1 || calls[0] != "second" {
		t.Fatalf("calls = %v, want the later registration to win", calls)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	r := NewRegistry()
	noop := func(*Entity, []any) {}

	if err := r.Register("", nil, noop); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register("fire", nil, nil); err == nil {
		t.Error("nil handler accepted")
	}
	err := r.Register("fire", []ArgKind{ArgKind(99)}, noop)
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("unsupported kind error = %v, want ErrUnsupportedKind", err)
	}
}
