// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package models

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// Raw response shapes for the schedule/grade portal API. These mirror the
// portal's JSON exactly; domain entities in models.go are built from them.

// ScheduledClass is one item of the schedule listing
// (GET /centers/{id}/schedule).
type ScheduledClass struct {
	ClassID                 string `json:"classId"`
	StartDate               string `json:"startDate"`
	IsOnline                bool   `json:"isOnline,omitempty"`
	CategoriesAbbreviations string `json:"categoriesAbbreviations,omitempty"`
	NumberOfSeats           int    `json:"numberOfSeats,omitempty"`
}

// ClassDetails is the per-class detail response
// (GET /classes/{id}/details), carrying the roster and category tree.
type ClassDetails struct {
	ClassID          string           `json:"classId"`
	StartDate        string           `json:"startDate"`
	TeacherFirstName string           `json:"teacherFirstName,omitempty"`
	Categories       []Category       `json:"categories,omitempty"`
	BookedStudents   []StudentBooking `json:"bookedStudents,omitempty"`
	StandbyStudents  []StudentBooking `json:"standbyStudents,omitempty"`
}

// UnitNumber returns the unit number of the first category, or "" when
// the class carries no unit (CC classes).
func (d *ClassDetails) UnitNumber() string {
	if d == nil || len(d.Categories) == 0 || d.Categories[0].Attributes == nil {
		return ""
	}
	return d.Categories[0].Attributes.Number.String()
}

// Category tags a class with its curriculum attributes.
type Category struct {
	Name       string              `json:"name,omitempty"`
	Attributes *CategoryAttributes `json:"attributes,omitempty"`
}

// CategoryAttributes carries the unit number for encounter classes.
type CategoryAttributes struct {
	Number Num `json:"number"`
}

// LessonSummariesResponse wraps the lesson summary listing
// (GET /students/{id}/units/{unitId}/lessonssummaries).
type LessonSummariesResponse struct {
	LessonsSummaries []LessonSummary `json:"lessonsSummaries"`
}

// Num is a JSON scalar the portal emits inconsistently as either a
// number or a string (unit numbers, lesson numbers). It normalizes to
// the string form so comparisons are stable.
type Num string

// UnmarshalJSON accepts a JSON string, number, or null.
func (n *Num) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Num(s)
		return nil
	}
	*n = Num(data)
	return nil
}

// MarshalJSON emits the string form.
func (n Num) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(n))
}

// String returns the normalized string form.
func (n Num) String() string { return string(n) }

// Int parses the value as an integer, returning 0 when it does not
// parse (fractional lesson numbers do not occur in practice).
func (n Num) Int() int {
	v, err := strconv.Atoi(string(n))
	if err != nil {
		if f, ferr := strconv.ParseFloat(string(n), 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return v
}
