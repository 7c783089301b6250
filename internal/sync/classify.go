// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"regexp"
	"strings"

	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/models"
)

// ccAbbreviation matches the category tag of a complementary class: a
// single letter followed by a single digit, e.g. "A1" or "b3".
var ccAbbreviation = regexp.MustCompile(`^[A-Za-z][0-9]$`)

// IsComplementaryClass reports whether a comma-separated category
// abbreviation list tags a complementary (CC) class. Any token of the
// letter+digit form marks the class as CC; everything else, including
// an empty list, is an encounter.
func IsComplementaryClass(categoriesAbbreviations string) bool {
	for _, token := range strings.Split(categoriesAbbreviations, ",") {
		if ccAbbreviation.MatchString(strings.TrimSpace(token)) {
			return true
		}
	}
	return false
}

// FilterClasses drops scheduled classes the dashboard does not track:
// online-only sessions, sessions without a start date or category tag,
// and sessions outside the requested date window.
func FilterClasses(classes []models.ScheduledClass, dates []string) []models.ScheduledClass {
	inWindow := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		inWindow[date] = struct{}{}
	}

	filtered := make([]models.ScheduledClass, 0, len(classes))
	for _, class := range classes {
		if class.IsOnline {
			continue
		}
		if len(class.StartDate) < 10 || class.CategoriesAbbreviations == "" {
			continue
		}
		if _, ok := inWindow[class.StartDate[:10]]; !ok {
			continue
		}
		filtered = append(filtered, class)
	}
	return filtered
}

// ModeOf classifies a category abbreviation list into a class mode.
func ModeOf(categoriesAbbreviations string) models.ClassMode {
	if IsComplementaryClass(categoriesAbbreviations) {
		return models.ModeComplementary
	}
	return models.ModeEncounter
}

// GroupEntries buckets entries by "<mode>_<date>" document key. Every
// date and mode requested by a refresh must appear in the result even
// when empty, so a day with no classes overwrites yesterday's stale
// document instead of leaving it behind.
func GroupEntries(entries []models.ScheduleEntry, dates []string) map[string][]models.ScheduleEntry {
	grouped := make(map[string][]models.ScheduleEntry)
	for _, date := range dates {
		grouped[docstore.ScheduleKey(models.ModeEncounter, date)] = []models.ScheduleEntry{}
		grouped[docstore.ScheduleKey(models.ModeComplementary, date)] = []models.ScheduleEntry{}
	}
	for _, entry := range entries {
		key := docstore.ScheduleKey(ModeOf(entry.CategoriesAbbreviations), entry.Date())
		grouped[key] = append(grouped[key], entry)
	}
	return grouped
}

// ResolveUnitID maps an entry's unit number to the student's portal
// unit ID via their level summaries. Returns "" when the unit number is
// empty (CC classes) or not present in the summaries.
func ResolveUnitID(summaries *models.LevelSummaries, unitNumber string) string {
	if unitNumber == "" {
		return ""
	}
	unit := summaries.FindUnit(unitNumber)
	if unit == nil {
		return ""
	}
	return unit.UnitID
}

// DedupStudents returns the unique students across all entries'
// rosters, keyed and deduplicated by user ID. A student booked into
// several classes keeps the fields of the last booking seen; identity
// fields are stable across bookings so only mutable extras differ.
func DedupStudents(entries []models.ScheduleEntry) []models.Student {
	index := make(map[string]int)
	var students []models.Student
	for i := range entries {
		for _, booking := range entries[i].Roster() {
			if booking.Student.UserID == "" {
				continue
			}
			if at, ok := index[booking.Student.UserID]; ok {
				students[at] = booking.Student
				continue
			}
			index[booking.Student.UserID] = len(students)
			students = append(students, booking.Student)
		}
	}
	return students
}
