// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"github.com/alrimii/AlKharj/internal/models"
)

// MergeScheduleEntry combines a freshly fetched entry with its cached
// counterpart. Fresh data always wins; the only thing taken from the
// cache is a student's lesson summaries for units the fresh copy does
// not carry. A refresh that skipped the lesson-summary stage therefore
// never erases previously known progress.
//
// Pure: neither input is mutated and the result shares no mutable state
// with either. Merging the same inputs twice yields the same output.
func MergeScheduleEntry(fresh, cached models.ScheduleEntry) models.ScheduleEntry {
	out := fresh.Clone()

	cachedStudents := make(map[string]*models.Student)
	for i := range cached.Booked {
		cachedStudents[cached.Booked[i].Student.UserID] = &cached.Booked[i].Student
	}
	for i := range cached.Standby {
		if _, ok := cachedStudents[cached.Standby[i].Student.UserID]; !ok {
			cachedStudents[cached.Standby[i].Student.UserID] = &cached.Standby[i].Student
		}
	}

	fillBookings(out.Booked, cachedStudents)
	fillBookings(out.Standby, cachedStudents)
	return out
}

func fillBookings(bookings []models.StudentBooking, cachedStudents map[string]*models.Student) {
	for i := range bookings {
		student := &bookings[i].Student
		cachedStudent, ok := cachedStudents[student.UserID]
		if !ok || len(cachedStudent.LessonSummaries) == 0 {
			continue
		}
		for unit, lessons := range cachedStudent.LessonSummaries {
			if _, exists := student.LessonSummaries[unit]; exists {
				continue
			}
			if student.LessonSummaries == nil {
				student.LessonSummaries = make(map[string][]models.LessonSummary)
			}
			cp := make([]models.LessonSummary, len(lessons))
			copy(cp, lessons)
			student.LessonSummaries[unit] = cp
		}
	}
}

// MergeEntries merges fresh entries against cached ones matched by
// class ID. Fresh entries with no cached counterpart pass through
// cloned; cached entries absent from fresh are dropped, since fresh is
// the authoritative schedule.
func MergeEntries(fresh, cached []models.ScheduleEntry) []models.ScheduleEntry {
	cachedByID := make(map[string]*models.ScheduleEntry, len(cached))
	for i := range cached {
		cachedByID[cached[i].ClassID] = &cached[i]
	}

	out := make([]models.ScheduleEntry, 0, len(fresh))
	for i := range fresh {
		if cachedEntry, ok := cachedByID[fresh[i].ClassID]; ok {
			out = append(out, MergeScheduleEntry(fresh[i], *cachedEntry))
		} else {
			out = append(out, fresh[i].Clone())
		}
	}
	return out
}

// MergeLevelSummaries resolves one student's level summaries after a
// fetch cycle. A fresh fetch always wins; a failed fetch (nil fresh)
// falls back to the cached value wholesale. Level and unit structure is
// atomic per student, so there is no partial merge at this granularity.
func MergeLevelSummaries(fresh, cached *models.LevelSummaries) *models.LevelSummaries {
	if fresh != nil {
		return fresh
	}
	return cached
}

// MergeGrouped merges fresh schedule documents against cached ones
// sharing the same document key.
func MergeGrouped(fresh, cached map[string][]models.ScheduleEntry) map[string][]models.ScheduleEntry {
	out := make(map[string][]models.ScheduleEntry, len(fresh))
	for key, freshEntries := range fresh {
		out[key] = MergeEntries(freshEntries, cached[key])
	}
	return out
}
