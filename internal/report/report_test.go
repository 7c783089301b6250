// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package report

import (
	"testing"
	"time"

	"github.com/alrimii/AlKharj/internal/models"
)

func f(v float64) *float64 { return &v }

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "N/A"},
		{"N/A", "N/A"},
		{"0501234567", "+966501234567"},
		{"+9660501234567", "+966501234567"},
		{"+966501234567", "+966501234567"},
		{"501234567", "+966501234567"},
		{"050 123 4567", "+966501234567"},
		{"+12025550123", "+12025550123"},
	}
	for _, tt := range tests {
		if got := FormatPhone(tt.in); got != tt.want {
			t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLessonStatus(t *testing.T) {
	lessons := []models.LessonSummary{
		{LessonNumber: "1", ActivitiesSummary: &models.ProgressSummary{Progress: 100}, WorkbooksSummary: &models.ProgressSummary{Progress: 40}},
		{LessonNumber: "2", ActivitiesSummary: &models.ProgressSummary{Progress: 66.6}},
		{LessonNumber: "7", ActivitiesSummary: &models.ProgressSummary{Progress: 100}},
	}

	activities, workbooks := LessonStatus(lessons)
	if activities[1] != "C" {
		t.Errorf("activities[1] = %q", activities[1])
	}
	if workbooks[1] != "(40%)" {
		t.Errorf("workbooks[1] = %q", workbooks[1])
	}
	if activities[2] != "(67%)" {
		t.Errorf("activities[2] = %q", activities[2])
	}
	// Lesson 3 has no data; lesson 7 is outside the tracked range.
	if activities[3] != "(0%)" || workbooks[3] != "(0%)" {
		t.Errorf("lesson 3 = %q / %q", activities[3], workbooks[3])
	}
	if _, ok := activities[7]; ok {
		t.Error("lesson 7 must not be tracked")
	}

	activities, workbooks = LessonStatus(nil)
	for i := 1; i <= 3; i++ {
		if activities[i] != "(0%)" || workbooks[i] != "(0%)" {
			t.Errorf("empty input lesson %d = %q / %q", i, activities[i], workbooks[i])
		}
	}
}

func summariesWithUnit(unit models.Unit) *models.LevelSummaries {
	return &models.LevelSummaries{Elements: []models.Level{{Units: []models.Unit{unit}}}}
}

func TestEncounterResult(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   string
	}{
		{"continue", "Continue", "Continue"},
		{"repeat", "Repeat", "Repeat"},
		{"no show cased", "Student No Show", "No Show"},
		{"other verbatim", "Passed", "Passed"},
		{"empty pending", "", "P"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summaries := summariesWithUnit(models.Unit{
				UnitNumber:       "4",
				EncounterSummary: &models.EncounterSummary{Result: tt.result},
			})
			if got := EncounterResult(summaries, "4"); got != tt.want {
				t.Errorf("EncounterResult = %q, want %q", got, tt.want)
			}
		})
	}

	if got := EncounterResult(nil, "4"); got != "P" {
		t.Errorf("nil summaries = %q, want P", got)
	}
	summaries := summariesWithUnit(models.Unit{UnitNumber: "4"})
	if got := EncounterResult(summaries, "9"); got != "P" {
		t.Errorf("unknown unit = %q, want P", got)
	}
}

func TestUnitScoresAndFormat(t *testing.T) {
	summaries := summariesWithUnit(models.Unit{
		UnitNumber:      "4",
		ActivitySummary: &models.ScoreSummary{Overall: f(87.5)},
		WorkbookSummary: &models.ScoreSummary{Overall: f(90)},
	})

	activity, workbook := UnitScores(summaries, "4")
	if activity == nil || *activity != 87.5 || workbook == nil || *workbook != 90 {
		t.Fatalf("scores = %v %v", activity, workbook)
	}

	if got := FormatScores(activity, workbook); got != "L:87.5 W:90" {
		t.Errorf("FormatScores = %q", got)
	}
	if got := FormatScores(nil, f(70)); got != "L:- W:70" {
		t.Errorf("FormatScores = %q", got)
	}
	if got := FormatScores(f(70), nil); got != "L:70 W:-" {
		t.Errorf("FormatScores = %q", got)
	}
	if got := FormatScores(nil, nil); got != "N/A" {
		t.Errorf("FormatScores = %q", got)
	}
}

func TestHighlight(t *testing.T) {
	complete := map[int]string{1: "C", 2: "C", 3: "C"}
	lessonsPending := map[int]string{1: "C", 2: "(40%)", 3: "C"}

	now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	soon := now.Add(90 * time.Minute)

	if got := Highlight(soon, now, lessonsPending, complete); got != HighlightDanger {
		t.Errorf("incomplete lessons = %q, want danger", got)
	}
	if got := Highlight(soon, now, complete, lessonsPending); got != HighlightWarning {
		t.Errorf("incomplete workbooks only = %q, want warning", got)
	}
	if got := Highlight(soon, now, complete, complete); got != HighlightNone {
		t.Errorf("all complete = %q, want none", got)
	}

	farToday := now.Add(5 * time.Hour)
	if got := Highlight(farToday, now, lessonsPending, complete); got != HighlightNone {
		t.Errorf("class beyond the window = %q, want none", got)
	}
	started := now.Add(-time.Minute)
	if got := Highlight(started, now, lessonsPending, complete); got != HighlightNone {
		t.Errorf("already started = %q, want none", got)
	}
	tomorrow := now.Add(25 * time.Hour)
	if got := Highlight(tomorrow, now, lessonsPending, complete); got != HighlightNone {
		t.Errorf("other day = %q, want none", got)
	}
}
