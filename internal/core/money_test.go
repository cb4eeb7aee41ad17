package core

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{" 2.50 ", 250, true},
		{"-1", -100, true},
		{"-3,5", -350, true},
		{"-0.005", -1, true},
		{"0", 0, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(map[string]Money{"a": NewMoney(15000), "b": NewMoney(-5), "c": {}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(b), `{"a":150.00,"b":-0.05,"c":0.00}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a":12.5,"b":"3,99","c":null}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.A.Cents != 1250 || in.B.Cents != 399 || in.C.Cents != 0 {
		t.Fatalf("unexpected values %+v", in)
	}
	if err := json.Unmarshal([]byte(`{"a":"x"}`), &in); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a, b := NewMoney(12000), NewMoney(3000)
	if got := a.Add(b); got.Cents != 15000 {
		t.Fatalf("add: got %d", got.Cents)
	}
	if got := b.Sub(a); got.Cents != -9000 || !got.IsNegative() {
		t.Fatalf("sub: got %d", got.Cents)
	}
	if got := a.String(); got != "120.00" {
		t.Fatalf("string: got %s", got)
	}
}
