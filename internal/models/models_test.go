// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestNumUnmarshalVariants(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"7"`, "7"},
		{`7`, "7"},
		{`12.0`, "12.0"},
		{`null`, ""},
		{`""`, ""},
	}

	for _, tt := range tests {
		var n Num
		if err := json.Unmarshal([]byte(tt.input), &n); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.input, err)
		}
		if n.String() != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.input, n.String(), tt.want)
		}
	}
}

func TestNumInt(t *testing.T) {
	if got := Num("3").Int(); got != 3 {
		t.Errorf("Int() = %d, want 3", got)
	}
	if got := Num("12.0").Int(); got != 12 {
		t.Errorf("Int() = %d, want 12", got)
	}
	if got := Num("").Int(); got != 0 {
		t.Errorf("Int() = %d, want 0", got)
	}
}

func TestClassDetailsUnitNumber(t *testing.T) {
	raw := `{
		"classId": "c1",
		"startDate": "2024-01-10T10:00:00",
		"categories": [{"name": "Encounter", "attributes": {"number": 42}}]
	}`
	var d ClassDetails
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := d.UnitNumber(); got != "42" {
		t.Errorf("UnitNumber() = %q, want %q", got, "42")
	}

	var empty ClassDetails
	if got := empty.UnitNumber(); got != "" {
		t.Errorf("UnitNumber() on empty details = %q, want empty", got)
	}
}

func TestScheduleEntryDate(t *testing.T) {
	e := ScheduleEntry{StartDate: "2024-01-10T10:00:00"}
	if got := e.Date(); got != "2024-01-10" {
		t.Errorf("Date() = %q, want 2024-01-10", got)
	}
}

func TestScheduleEntryRosterPartitions(t *testing.T) {
	e := ScheduleEntry{
		Booked:  []StudentBooking{{Student: Student{UserID: "u1"}}},
		Standby: []StudentBooking{{Student: Student{UserID: "u2"}}},
	}
	roster := e.Roster()
	if len(roster) != 2 {
		t.Fatalf("Roster() len = %d, want 2", len(roster))
	}
	if roster[0].IsStandby || roster[0].Student.UserID != "u1" {
		t.Errorf("first roster item should be booked u1, got %+v", roster[0])
	}
	if !roster[1].IsStandby || roster[1].Student.UserID != "u2" {
		t.Errorf("second roster item should be standby u2, got %+v", roster[1])
	}
}

func TestScheduleEntryCloneIsDeep(t *testing.T) {
	e := ScheduleEntry{
		ClassID: "c1",
		Booked: []StudentBooking{{
			Student: Student{
				UserID:          "u1",
				LessonSummaries: map[string][]LessonSummary{"5": {{LessonNumber: "1"}}},
			},
		}},
	}

	cp := e.Clone()
	cp.Booked[0].Student.LessonSummaries["5"] = nil
	cp.Booked[0].Student.UserID = "changed"

	if e.Booked[0].Student.UserID != "u1" {
		t.Error("Clone() shares booking slice with original")
	}
	if len(e.Booked[0].Student.LessonSummaries["5"]) != 1 {
		t.Error("Clone() shares lesson summary map with original")
	}
}

func TestFindUnit(t *testing.T) {
	levels := &LevelSummaries{Elements: []Level{
		{Units: []Unit{{UnitID: "unit-a", UnitNumber: "4"}}},
		{Units: []Unit{{UnitID: "unit-b", UnitNumber: "5"}}},
	}}

	if u := levels.FindUnit("5"); u == nil || u.UnitID != "unit-b" {
		t.Errorf("FindUnit(5) = %+v, want unit-b", u)
	}
	if u := levels.FindUnit("9"); u != nil {
		t.Errorf("FindUnit(9) = %+v, want nil", u)
	}
	var nilLevels *LevelSummaries
	if u := nilLevels.FindUnit("5"); u != nil {
		t.Error("FindUnit on nil receiver should return nil")
	}
}
