// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package report

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alrimii/AlKharj/internal/models"
)

// timezoneOffset shifts portal UTC datetimes to center local time.
const timezoneOffset = 3

const profileURLFormat = "https://world.wallstreetenglish.com/profile/%s/gradeBook"

// DateTime is a portal start datetime split into display parts, in
// center local time.
type DateTime struct {
	Date string // YYYY-MM-DD
	Day  string // weekday name
	Time string // 12-hour clock, e.g. "6:30 PM"
}

// ParseDateTime splits an ISO datetime into date, weekday and a
// 12-hour local time. Malformed input yields "Unknown"/"N/A" parts so
// a bad record renders instead of breaking the table.
func ParseDateTime(dateStr string) DateTime {
	out := DateTime{Date: "Unknown", Day: "Unknown", Time: "N/A"}
	datePart, timePart, found := strings.Cut(dateStr, "T")
	if !found {
		return out
	}
	out.Date = datePart

	if day, err := time.Parse("2006-01-02", datePart); err == nil {
		out.Day = day.Weekday().String()
	}

	if len(timePart) >= 5 {
		hours, errH := strconv.Atoi(timePart[0:2])
		minutes, errM := strconv.Atoi(timePart[3:5])
		if errH == nil && errM == nil {
			adjusted := (hours + timezoneOffset) % 24
			period := "AM"
			if adjusted >= 12 {
				period = "PM"
			}
			display := adjusted % 12
			if display == 0 {
				display = 12
			}
			out.Time = fmt.Sprintf("%d:%02d %s", display, minutes, period)
		}
	}
	return out
}

var clockPattern = regexp.MustCompile(`(?i)(\d+):(\d+)\s*(AM|PM)`)

// timeMinutes converts a 12-hour display time to minutes since
// midnight. Unparseable times sort last.
func timeMinutes(timeStr string) int {
	match := clockPattern.FindStringSubmatch(timeStr)
	if match == nil {
		return 9999
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	period := strings.ToUpper(match[3])
	if period == "PM" && hours != 12 {
		hours += 12
	} else if period == "AM" && hours == 12 {
		hours = 0
	}
	return hours*60 + minutes
}

// CompareTime orders two display times chronologically. "N/A" and
// malformed values sort after every real time.
func CompareTime(a, b string) int {
	return timeMinutes(a) - timeMinutes(b)
}

// ClassReminder composes the attendance message for a class today,
// tomorrow, or (for encounters scheduled on a Thursday) the coming
// Saturday. Returns "N/A" when the student has no phone, the class is
// outside the reminder window, or tomorrow is Friday.
func ClassReminder(phone, firstName, classTime, classDate string, complementary bool, now time.Time) string {
	if phone == "N/A" {
		return "N/A"
	}

	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1)
	tomorrowStr := tomorrow.Format("2006-01-02")

	saturdayStr := ""
	if now.Weekday() == time.Thursday && !complementary {
		saturdayStr = now.AddDate(0, 0, 2).Format("2006-01-02")
	}

	classType := "encounter class"
	article := "an encounter class"
	if complementary {
		classType = "CC"
		article = "a CC"
	}

	switch {
	case classDate == today:
		return fmt.Sprintf("Please don't miss your %s today at %s.", classType, classTime)
	case classDate == tomorrowStr && tomorrow.Weekday() != time.Friday:
		return fmt.Sprintf("Hi, %s\n\nYou have %s tomorrow at %s.", firstName, article, classTime)
	case saturdayStr != "" && classDate == saturdayStr:
		return fmt.Sprintf("Hi, %s\n\nYou have an encounter class on Saturday at %s.", firstName, classTime)
	}
	return "N/A"
}

// HomeworkReminder composes the pre-class homework nag listing the
// incomplete lessons and workbooks. Returns "N/A" when the class is
// outside the reminder window or everything is complete. A lesson at
// "(0%)" counts as incomplete.
func HomeworkReminder(phone, classDate string, activities, workbooks map[int]string, now time.Time) string {
	if phone == "N/A" {
		return "N/A"
	}

	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1)
	tomorrowStr := tomorrow.Format("2006-01-02")
	saturdayStr := ""
	if now.Weekday() == time.Thursday {
		saturdayStr = now.AddDate(0, 0, 2).Format("2006-01-02")
	}

	relevant := classDate == today ||
		(classDate == tomorrowStr && tomorrow.Weekday() != time.Friday) ||
		(saturdayStr != "" && classDate == saturdayStr)
	if !relevant {
		return "N/A"
	}

	var incompleteL, incompleteW []string
	for i := 1; i <= trackedLessons; i++ {
		if activities[i] != "C" {
			incompleteL = append(incompleteL, strconv.Itoa(i))
		}
		if workbooks[i] != "C" {
			incompleteW = append(incompleteW, strconv.Itoa(i))
		}
	}
	if len(incompleteL) == 0 && len(incompleteW) == 0 {
		return "N/A"
	}

	var parts []string
	if len(incompleteL) > 0 {
		parts = append(parts, plural("Lesson", incompleteL))
	}
	if len(incompleteW) > 0 {
		parts = append(parts, plural("Workbook", incompleteW))
	}
	return fmt.Sprintf("🛑 Please make sure you finish ( %s ) before your class", strings.Join(parts, " & "))
}

func plural(noun string, numbers []string) string {
	if len(numbers) > 1 {
		noun += "s"
	}
	return noun + " " + strings.Join(numbers, ",")
}

// EncounterRow is one student line in an encounter table.
type EncounterRow struct {
	Code       string         `json:"code"`
	Name       string         `json:"name"`
	Phone      string         `json:"phone"`
	ProfileURL string         `json:"profileUrl"`
	Lessons    map[int]string `json:"lessons"`
	Workbooks  map[int]string `json:"workbooks"`
	Scores     string         `json:"scores"`
	Result     string         `json:"result"`
	Message    string         `json:"message"`
	Homework   string         `json:"homework"`
	Highlight  string         `json:"highlight,omitempty"`
	Standby    bool           `json:"standby,omitempty"`
}

// EncounterGroup is one encounter table: all students sharing a start
// time, unit and teacher.
type EncounterGroup struct {
	Time     string         `json:"time"`
	Unit     string         `json:"unit"`
	Teacher  string         `json:"teacher"`
	Students []EncounterRow `json:"students"`
}

// EncounterGroups builds the encounter display tables for one day's
// entries, grouped by (time, unit, teacher) and sorted by time then
// unit number. Entries without a unit number are skipped.
func EncounterGroups(entries []models.ScheduleEntry, summaries map[string]*models.LevelSummaries, now time.Time) []EncounterGroup {
	groups := make(map[string]*EncounterGroup)
	var order []string

	for i := range entries {
		entry := &entries[i]
		if entry.UnitNumber == "" {
			continue
		}

		dt := ParseDateTime(startDateOf(entry))
		teacher := firstWord(entry.TeacherName)
		key := dt.Time + "_Unit" + entry.UnitNumber + "_" + teacher
		group, ok := groups[key]
		if !ok {
			group = &EncounterGroup{Time: dt.Time, Unit: "Unit " + entry.UnitNumber, Teacher: teacher}
			groups[key] = group
			order = append(order, key)
		}

		classStart := localStart(startDateOf(entry))
		for _, booking := range entry.Roster() {
			if booking.Student.UserID == "" {
				continue
			}
			group.Students = append(group.Students,
				encounterRow(booking, entry.UnitNumber, dt, classStart, summaries[booking.Student.UserID], now))
		}
	}

	out := make([]EncounterGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := CompareTime(out[i].Time, out[j].Time); cmp != 0 {
			return cmp < 0
		}
		ui, _ := strconv.Atoi(strings.TrimPrefix(out[i].Unit, "Unit "))
		uj, _ := strconv.Atoi(strings.TrimPrefix(out[j].Unit, "Unit "))
		return ui < uj
	})
	return out
}

func encounterRow(booking models.StudentBooking, unitNumber string, dt DateTime, classStart time.Time, levelData *models.LevelSummaries, now time.Time) EncounterRow {
	student := booking.Student
	name := firstWord(student.FirstName)
	phone := FormatPhone(student.MobilePhone)

	activities, workbooks := LessonStatus(student.LessonSummaries[unitNumber])
	activity, workbook := UnitScores(levelData, unitNumber)

	return EncounterRow{
		Code:       orNA(student.StudentCode),
		Name:       name,
		Phone:      phone,
		ProfileURL: fmt.Sprintf(profileURLFormat, student.UserID),
		Lessons:    activities,
		Workbooks:  workbooks,
		Scores:     FormatScores(activity, workbook),
		Result:     EncounterResult(levelData, unitNumber),
		Message:    ClassReminder(phone, name, dt.Time, dt.Date, false, now),
		Homework:   HomeworkReminder(phone, dt.Date, activities, workbooks, now),
		Highlight:  Highlight(classStart, now, activities, workbooks),
		Standby:    booking.IsStandby,
	}
}

// ComplementaryRow is one student line in a CC table.
type ComplementaryRow struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Type       string `json:"type"`
	Teacher    string `json:"teacher"`
	ProfileURL string `json:"profileUrl"`
	Message    string `json:"message"`
}

// ComplementaryGroup is one CC table: every student booked at the same
// start time, across classes.
type ComplementaryGroup struct {
	Time     string             `json:"time"`
	Students []ComplementaryRow `json:"students"`
}

// ComplementaryGroups builds the CC display tables for one day's
// entries, grouped by start time and sorted chronologically.
func ComplementaryGroups(entries []models.ScheduleEntry, now time.Time) []ComplementaryGroup {
	groups := make(map[string]*ComplementaryGroup)
	var order []string

	for i := range entries {
		entry := &entries[i]
		dt := ParseDateTime(startDateOf(entry))
		teacher := firstWord(entry.TeacherName)
		classType := orNA(entry.CategoriesAbbreviations)

		group, ok := groups[dt.Time]
		if !ok {
			group = &ComplementaryGroup{Time: dt.Time}
			groups[dt.Time] = group
			order = append(order, dt.Time)
		}

		for _, booking := range entry.Roster() {
			if booking.Student.UserID == "" {
				continue
			}
			name := firstWord(booking.Student.FirstName)
			phone := FormatPhone(booking.Student.MobilePhone)
			group.Students = append(group.Students, ComplementaryRow{
				Code:       orNA(booking.Student.StudentCode),
				Name:       name,
				Phone:      phone,
				Type:       classType,
				Teacher:    teacher,
				ProfileURL: fmt.Sprintf(profileURLFormat, booking.Student.UserID),
				Message:    ClassReminder(phone, name, dt.Time, dt.Date, true, now),
			})
		}
	}

	out := make([]ComplementaryGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareTime(out[i].Time, out[j].Time) < 0
	})
	return out
}

// startDateOf prefers the listing start date preserved before a detail
// fetch overwrote it.
func startDateOf(entry *models.ScheduleEntry) string {
	if entry.OriginalStartDate != "" {
		return entry.OriginalStartDate
	}
	return entry.StartDate
}

// localStart resolves an ISO datetime to a concrete local time for the
// highlight window check.
func localStart(dateStr string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(dateStr, "Z"))
	if err != nil {
		return time.Time{}
	}
	return t.Add(timezoneOffset * time.Hour)
}

func firstWord(s string) string {
	if s == "" {
		return "N/A"
	}
	word, _, _ := strings.Cut(s, " ")
	return word
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
