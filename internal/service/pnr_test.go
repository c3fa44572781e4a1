package service

import (
    "strings"
    "testing"
    "time"
)

func TestPNRShape(t *testing.T) {
    now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
    seen := make(map[string]bool)
    for i := 0; i < 500; i++ {
        p, err := NewPNR(now)
        if err != nil {
            t.Fatalf("pnr: %v", err)
        }
        if len(p) != PNRLength {
            t.Fatalf("len(%q) = %d, want %d", p, len(p), PNRLength)
        }
        if strings.ToUpper(p) != p {
            t.Fatalf("pnr %q is not upper case", p)
        }
        for _, c := range p[pnrTimeChars:] {
            if !strings.ContainsRune(pnrAlphabet, c) {
                t.Fatalf("pnr %q has symbol %q outside the alphabet", p, c)
            }
        }
        if seen[p] {
            t.Fatalf("duplicate pnr %q within the same second", p)
        }
        seen[p] = true
    }
}

func TestPNRTimePrefixOrders(t *testing.T) {
    a, _ := NewPNR(time.Unix(1_800_000_000, 0))
    b, _ := NewPNR(time.Unix(1_800_000_001, 0))
    if a[:pnrTimeChars] == b[:pnrTimeChars] {
        t.Fatalf("time prefix did not change: %q %q", a, b)
    }
}
