// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package report derives the display fields the dashboard shows per
// student: homework completion markers, encounter results, unit scores,
// normalized phone numbers, and pre-class urgency highlights. All
// functions are pure.
package report

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/alrimii/AlKharj/internal/models"
)

// trackedLessons is the lesson-number range shown on the dashboard.
const trackedLessons = 3

// Highlight levels for classes starting soon with incomplete homework.
const (
	HighlightNone    = ""
	HighlightWarning = "warning"
	HighlightDanger  = "danger"
)

// highlightWindow is how far before class start the homework check
// applies.
const highlightWindow = 2 * time.Hour

var nonPhoneChars = regexp.MustCompile(`[^\d+]`)

// FormatPhone normalizes a Saudi mobile number to +966 form. Inputs
// already carrying a non-Saudi country code pass through cleaned.
func FormatPhone(phone string) string {
	if phone == "" || phone == "N/A" {
		return "N/A"
	}
	cleaned := nonPhoneChars.ReplaceAllString(phone, "")
	switch {
	case strings.HasPrefix(cleaned, "+966"):
		if len(cleaned) > 4 && cleaned[4] == '0' {
			cleaned = "+966" + cleaned[5:]
		}
	case strings.HasPrefix(cleaned, "0"):
		cleaned = "+966" + cleaned[1:]
	case !strings.HasPrefix(cleaned, "+"):
		cleaned = "+966" + cleaned
	}
	return cleaned
}

// LessonStatus condenses a unit's lesson summaries into per-lesson
// activity and workbook markers for lessons 1 through 3: "C" when
// complete, "(N%)" otherwise. Lessons with no data read "(0%)".
func LessonStatus(lessons []models.LessonSummary) (activities, workbooks map[int]string) {
	activities = make(map[int]string, trackedLessons)
	workbooks = make(map[int]string, trackedLessons)
	for i := 1; i <= trackedLessons; i++ {
		activities[i] = "(0%)"
		workbooks[i] = "(0%)"
	}

	for _, lesson := range lessons {
		n := lesson.LessonNumber.Int()
		if n < 1 || n > trackedLessons {
			continue
		}
		if lesson.ActivitiesSummary != nil {
			activities[n] = progressMarker(lesson.ActivitiesSummary.Progress)
		}
		if lesson.WorkbooksSummary != nil {
			workbooks[n] = progressMarker(lesson.WorkbooksSummary.Progress)
		}
	}
	return activities, workbooks
}

func progressMarker(progress float64) string {
	if progress == 100 {
		return "C"
	}
	return fmt.Sprintf("(%d%%)", int(math.Round(progress)))
}

// EncounterResult resolves a student's encounter outcome for one unit:
// "No Show", "Continue", "Repeat", any other recorded result verbatim,
// or "P" (pending) when nothing is recorded.
func EncounterResult(summaries *models.LevelSummaries, unitNumber string) string {
	unit := findUnit(summaries, unitNumber)
	if unit == nil || unit.EncounterSummary == nil {
		return "P"
	}
	result := unit.EncounterSummary.Result
	if strings.Contains(strings.ToLower(result), "no show") {
		return "No Show"
	}
	if result == "" {
		return "P"
	}
	return result
}

// UnitScores returns a student's overall activity and workbook scores
// for one unit. Nil means no score recorded.
func UnitScores(summaries *models.LevelSummaries, unitNumber string) (activity, workbook *float64) {
	unit := findUnit(summaries, unitNumber)
	if unit == nil {
		return nil, nil
	}
	if unit.ActivitySummary != nil {
		activity = unit.ActivitySummary.Overall
	}
	if unit.WorkbookSummary != nil {
		workbook = unit.WorkbookSummary.Overall
	}
	return activity, workbook
}

// FormatScores renders the score pair as "L:<n> W:<n>", "-" for a
// missing side, "N/A" when both are missing. Whole numbers drop the
// decimal.
func FormatScores(activity, workbook *float64) string {
	if activity == nil && workbook == nil {
		return "N/A"
	}
	return "L:" + scorePart(activity) + " W:" + scorePart(workbook)
}

func scorePart(score *float64) string {
	if score == nil {
		return "-"
	}
	if *score == math.Trunc(*score) {
		return fmt.Sprintf("%d", int(*score))
	}
	return fmt.Sprintf("%.1f", *score)
}

// Highlight flags a class starting within the next two hours whose
// student still has incomplete homework: danger when lessons are
// incomplete, warning when only workbooks are. Classes on other days or
// already started return HighlightNone.
func Highlight(classStart, now time.Time, activities, workbooks map[int]string) string {
	if classStart.Year() != now.Year() || classStart.YearDay() != now.YearDay() {
		return HighlightNone
	}
	until := classStart.Sub(now)
	if until <= 0 || until > highlightWindow {
		return HighlightNone
	}

	lessonsIncomplete := false
	workbooksIncomplete := false
	for i := 1; i <= trackedLessons; i++ {
		if activities[i] != "C" {
			lessonsIncomplete = true
		}
		if workbooks[i] != "C" {
			workbooksIncomplete = true
		}
	}
	switch {
	case lessonsIncomplete:
		return HighlightDanger
	case workbooksIncomplete:
		return HighlightWarning
	default:
		return HighlightNone
	}
}

func findUnit(summaries *models.LevelSummaries, unitNumber string) *models.Unit {
	if summaries == nil {
		return nil
	}
	return summaries.FindUnit(unitNumber)
}
