package uniqer

import (
	"testing"

	"nurscan/Packages/rfid/models"
)

func TestSessionFirstReadWins(t *testing.T) {
	s := NewSession()

	first := models.Tag{EPC: "E2001122", RSSI: -40, Timestamp: 100}
	second := models.Tag{EPC: "E2001122", RSSI: -20, Timestamp: 200}

	if !s.Add(first) {
		t.Fatal("first read must be added")
	}
	if !s.IsDuplicate(second) {
		t.Fatal("second read must be a duplicate")
	}
	if s.Add(second) {
		t.Fatal("second read must be dropped")
	}

	if s.Len() != 1 {
		t.Fatalf("len: got %d, want 1", s.Len())
	}
	got, _ := s.At(0)
	if got != first {
		t.Errorf("got %v, want first read %v", got, first)
	}
}

func TestSessionOrder(t *testing.T) {
	s := NewSession()
	for _, epc := range []string{"E2001122", "AABBCCDD", "E2001122", "0011"} {
		s.Add(models.Tag{EPC: epc})
	}

	want := []string{"E2001122", "AABBCCDD", "0011"}
	tags := s.Tags()
	if len(tags) != len(want) {
		t.Fatalf("got %d tags, want %d", len(tags), len(want))
	}
	for i, w := range want {
		if tags[i].EPC != w {
			t.Errorf("row %d: got %q, want %q", i, tags[i].EPC, w)
		}
	}
}

func TestSessionCaseSensitive(t *testing.T) {
	s := NewSession()
	s.Add(models.Tag{EPC: "AABB"})

	if s.IsDuplicate(models.Tag{EPC: "aabb"}) {
		t.Error("epc comparison must be exact")
	}
}

func TestSessionLookupAndAt(t *testing.T) {
	s := NewSession()
	s.Add(models.Tag{EPC: "01", Channel: 3})

	if tag, ok := s.Lookup("01"); !ok || tag.Channel != 3 {
		t.Errorf("lookup: got %v, %v", tag, ok)
	}
	if _, ok := s.Lookup("02"); ok {
		t.Error("lookup of unknown epc must fail")
	}
	if _, ok := s.At(1); ok {
		t.Error("row out of range must fail")
	}
	if _, ok := s.At(-1); ok {
		t.Error("negative row must fail")
	}
}

func TestSessionTagsIsCopy(t *testing.T) {
	s := NewSession()
	s.Add(models.Tag{EPC: "01"})

	tags := s.Tags()
	tags[0].EPC = "FF"

	if got, _ := s.At(0); got.EPC != "01" {
		t.Errorf("session mutated through snapshot: %v", got)
	}
}

func TestSessionReset(t *testing.T) {
	s := NewSession()
	s.Add(models.Tag{EPC: "01"})
	s.Reset()

	if s.Len() != 0 {
		t.Fatalf("len after reset: %d", s.Len())
	}
	if !s.Add(models.Tag{EPC: "01"}) {
		t.Error("epc must be new again after reset")
	}
}
