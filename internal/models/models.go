// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package models defines the domain entities shared across the tracker:
// schedule entries with student rosters, per-student level and lesson
// summaries, and the cross-device sync status record.
//
// Entities are decoded from the portal API (see portal.go for the raw
// response shapes) and persisted to the document store as JSON. The same
// student may appear in many schedule entries on different dates; those
// are independent copies, not references, so merge logic operates on each
// occurrence separately.
package models

import (
	"time"
)

// ClassMode classifies a scheduled class.
type ClassMode string

const (
	// ModeEncounter is a live class session tied to a curriculum unit.
	ModeEncounter ClassMode = "encounter"
	// ModeComplementary is a supplementary (CC) session, identified by a
	// two-character letter+digit category abbreviation.
	ModeComplementary ClassMode = "cc"
)

// ScheduleEntry is one scheduled class occurrence, enriched with the
// per-class details fetch and persisted keyed by "<mode>_<date>".
type ScheduleEntry struct {
	ClassID                 string           `json:"classId"`
	StartDate               string           `json:"startDate"` // ISO datetime from the portal
	OriginalStartDate       string           `json:"originalStartDate,omitempty"`
	TeacherName             string           `json:"teacherFirstName,omitempty"`
	CategoriesAbbreviations string           `json:"categoriesAbbreviations,omitempty"`
	UnitNumber              string           `json:"unitNumber,omitempty"` // empty for CC classes
	NumberOfSeats           int              `json:"numberOfSeats,omitempty"`
	Booked                  []StudentBooking `json:"bookedStudents,omitempty"`
	Standby                 []StudentBooking `json:"standbyStudents,omitempty"`
}

// Date returns the calendar date portion (YYYY-MM-DD) of the entry's
// start datetime.
func (e *ScheduleEntry) Date() string {
	if len(e.StartDate) >= 10 {
		return e.StartDate[:10]
	}
	return e.StartDate
}

// Roster returns all bookings, booked first then standby, with the
// IsStandby flag set accordingly.
func (e *ScheduleEntry) Roster() []StudentBooking {
	roster := make([]StudentBooking, 0, len(e.Booked)+len(e.Standby))
	for _, b := range e.Booked {
		b.IsStandby = false
		roster = append(roster, b)
	}
	for _, b := range e.Standby {
		b.IsStandby = true
		roster = append(roster, b)
	}
	return roster
}

// Clone returns a deep copy of the entry. Rosters and nested lesson
// summary maps are copied so merge functions can return new structures
// without mutating their inputs.
func (e *ScheduleEntry) Clone() ScheduleEntry {
	out := *e
	out.Booked = cloneBookings(e.Booked)
	out.Standby = cloneBookings(e.Standby)
	return out
}

func cloneBookings(bookings []StudentBooking) []StudentBooking {
	if bookings == nil {
		return nil
	}
	out := make([]StudentBooking, len(bookings))
	for i, b := range bookings {
		out[i] = b
		out[i].Student = b.Student.Clone()
	}
	return out
}

// StudentBooking wraps a Student within one schedule entry's roster.
// Not independently persisted.
type StudentBooking struct {
	Student   Student `json:"student"`
	IsStandby bool    `json:"isStandby,omitempty"`
}

// Student is a portal student. Canonical identity is UserID.
//
// LessonSummaries maps unit number to the per-lesson progress records
// accumulated across fetch cycles. A refresh that does not re-request
// lesson summaries must not lose previously known entries; the merge
// layer fills gaps from the cached copy.
type Student struct {
	UserID          string                     `json:"userId"`
	StudentCode     string                     `json:"studentCode,omitempty"`
	FirstName       string                     `json:"firstName,omitempty"`
	MobilePhone     string                     `json:"mobileTelephone,omitempty"`
	LessonSummaries map[string][]LessonSummary `json:"lessonSummaries,omitempty"`
}

// Clone returns a deep copy of the student.
func (s Student) Clone() Student {
	out := s
	if s.LessonSummaries != nil {
		out.LessonSummaries = make(map[string][]LessonSummary, len(s.LessonSummaries))
		for unit, lessons := range s.LessonSummaries {
			cp := make([]LessonSummary, len(lessons))
			copy(cp, lessons)
			out.LessonSummaries[unit] = cp
		}
	}
	return out
}

// LevelSummaries is a student's curriculum progress: ordered levels, each
// with ordered units. Keyed by userId in the document store and cached
// independently of schedules.
type LevelSummaries struct {
	Elements []Level `json:"elements"`
}

// FindUnit locates the unit with the given unit number across all
// levels. Returns nil when no unit matches.
func (l *LevelSummaries) FindUnit(unitNumber string) *Unit {
	if l == nil {
		return nil
	}
	for i := range l.Elements {
		for j := range l.Elements[i].Units {
			u := &l.Elements[i].Units[j]
			if u.UnitNumber.String() == unitNumber {
				return u
			}
		}
	}
	return nil
}

// Level is one curriculum level containing units.
type Level struct {
	LevelNumber Num    `json:"levelNumber,omitempty"`
	Name        string `json:"name,omitempty"`
	Units       []Unit `json:"units,omitempty"`
}

// Unit carries encounter results and activity/workbook scores for one
// curriculum unit.
type Unit struct {
	UnitID           string            `json:"unitId,omitempty"`
	UnitNumber       Num               `json:"unitNumber"`
	EncounterSummary *EncounterSummary `json:"encounterSummary,omitempty"`
	ActivitySummary  *ScoreSummary     `json:"activitySummary,omitempty"`
	WorkbookSummary  *ScoreSummary     `json:"workbookSummary,omitempty"`
}

// EncounterSummary is the outcome of a unit's encounter class.
type EncounterSummary struct {
	Result          string   `json:"result,omitempty"`
	Score           *float64 `json:"score,omitempty"`
	TeacherFullName string   `json:"teacherFullName,omitempty"`
	DateCompletion  string   `json:"dateCompletion,omitempty"`
	Feedback        string   `json:"feedback,omitempty"`
}

// ScoreSummary is an overall numeric score for a unit's activities or
// workbooks.
type ScoreSummary struct {
	Overall *float64 `json:"overall,omitempty"`
}

// LessonSummary is per-lesson-number activity and workbook completion for
// one (student, unit) pair. The expensive leaf of the fetch tree: one
// portal call per student per unit.
type LessonSummary struct {
	LessonNumber      Num              `json:"lessonNumber"`
	ActivitiesSummary *ProgressSummary `json:"activitiesSummary,omitempty"`
	WorkbooksSummary  *ProgressSummary `json:"workbooksSummary,omitempty"`
}

// ProgressSummary is a 0-100 completion percentage.
type ProgressSummary struct {
	Progress float64 `json:"progress"`
}

// SyncStatus is the single shared coordination record. At most one device
// may hold IsUpdating=true for longer than the lock-expiry window; any
// client may reclaim a lock older than that window.
type SyncStatus struct {
	IsUpdating      bool      `json:"isUpdating"`
	UpdatedBy       string    `json:"updatedBy,omitempty"`
	UpdateStartedAt time.Time `json:"updateStartedAt,omitempty"`
	LastUpdateTime  time.Time `json:"lastUpdateTime,omitempty"`
}

// TokenDocument is the shared bearer token record maintained by the
// external token-scraping automation.
type TokenDocument struct {
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Source    string    `json:"source,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Settings is the shared center configuration document.
type Settings struct {
	CenterName string    `json:"centerName"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
	UpdatedBy  string    `json:"updatedBy,omitempty"`
}
