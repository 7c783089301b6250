// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
	"github.com/alrimii/AlKharj/internal/wse"
)

// Stage names reported through the progress callback.
const (
	StageSchedule        = "schedule"
	StageClassDetails    = "class_details"
	StageRoster          = "roster"
	StageLevelSummaries  = "level_summaries"
	StageLessonSummaries = "lesson_summaries"
)

// ProgressFunc receives stage completion updates during a refresh. May
// be nil.
type ProgressFunc func(stage string, completed, total int)

// Result summarizes one completed refresh.
type Result struct {
	Dates        []string
	ClassCount   int
	StudentCount int
	// Grouped holds the merged schedule documents that were persisted,
	// keyed by "<mode>_<date>".
	Grouped map[string][]models.ScheduleEntry
	// StageFailures counts per-item failures tolerated per stage.
	StageFailures map[string]int
}

// Pipeline runs the five-stage fetch: schedule listing, per-class
// details, roster deduplication, per-student level summaries, and
// per-student-per-unit lesson summaries. Stages run strictly in order;
// within a stage, items run concurrently up to the configured limit.
//
// Only a stage-one failure aborts the refresh. Every later stage
// tolerates per-item failures: a class whose details cannot be fetched
// stays in the schedule without a roster, a student whose summaries
// cannot be fetched falls back to the cached copy.
type Pipeline struct {
	portal      wse.PortalAPI
	docs        *docstore.Documents
	concurrency int
	daysBehind  int
	daysAhead   int
	progress    ProgressFunc

	// now is injectable for deterministic date-window tests.
	now func() time.Time
}

// NewPipeline creates a pipeline fetching a window of daysBehind days
// of recent schedule plus daysAhead days from today, with at most
// concurrency portal calls in flight per stage.
func NewPipeline(portal wse.PortalAPI, docs *docstore.Documents, concurrency, daysBehind, daysAhead int, progress ProgressFunc) *Pipeline {
	return &Pipeline{
		portal:      portal,
		docs:        docs,
		concurrency: concurrency,
		daysBehind:  daysBehind,
		daysAhead:   daysAhead,
		progress:    progress,
		now:         time.Now,
	}
}

// Dates returns the date window of the next refresh in order, from
// daysBehind days ago through daysAhead-1 days from today.
func (p *Pipeline) Dates() []string {
	dates := make([]string, p.daysBehind+p.daysAhead)
	start := p.now().UTC().AddDate(0, 0, -p.daysBehind)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i).Format("2006-01-02")
	}
	return dates
}

// Run executes one complete refresh and persists the merged result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	dates := p.Dates()
	result := &Result{
		Dates:         dates,
		StageFailures: make(map[string]int),
	}

	// Stage 1: schedule listing. A failure here aborts the refresh;
	// without the class list nothing below has meaning.
	classes, err := p.portal.FetchSchedule(ctx, dates[0])
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	classes = FilterClasses(classes, dates)
	p.report(StageSchedule, 1, 1)
	result.ClassCount = len(classes)

	entries := make([]models.ScheduleEntry, len(classes))
	for i, class := range classes {
		entries[i] = models.ScheduleEntry{
			ClassID:                 class.ClassID,
			StartDate:               class.StartDate,
			CategoriesAbbreviations: class.CategoriesAbbreviations,
			NumberOfSeats:           class.NumberOfSeats,
		}
	}

	// Stage 2: per-class details.
	p.fetchClassDetails(ctx, entries, result)

	// Stage 3: roster deduplication.
	students := DedupStudents(entries)
	result.StudentCount = len(students)
	p.report(StageRoster, len(students), len(students))

	// Stage 4: per-student level summaries with cached fallback.
	summariesByUser := p.fetchLevelSummaries(ctx, students, result)

	// Stage 5: per-student-per-unit lesson summaries.
	p.fetchLessonSummaries(ctx, entries, summariesByUser, result)

	// Merge against the cached documents and persist.
	fresh := GroupEntries(entries, dates)
	cached, err := p.docs.LoadSchedules(ctx, []models.ClassMode{models.ModeEncounter, models.ModeComplementary}, dates)
	if err != nil {
		return nil, fmt.Errorf("load cached schedules: %w", err)
	}
	merged := MergeGrouped(fresh, cached)
	if err := p.docs.SaveSchedules(ctx, merged); err != nil {
		return nil, fmt.Errorf("persist schedules: %w", err)
	}
	result.Grouped = merged

	logging.Info().
		Int("classes", result.ClassCount).
		Int("students", result.StudentCount).
		Strs("dates", dates).
		Msg("Refresh pipeline completed")
	return result, nil
}

func (p *Pipeline) fetchClassDetails(ctx context.Context, entries []models.ScheduleEntry, result *Result) {
	tasks := make([]func(ctx context.Context) (*models.ClassDetails, error), len(entries))
	for i := range entries {
		classID := entries[i].ClassID
		tasks[i] = func(ctx context.Context) (*models.ClassDetails, error) {
			return p.portal.FetchClassDetails(ctx, classID)
		}
	}

	details, errs := RunLimited(ctx, p.concurrency, tasks)
	for i := range entries {
		if errs[i] != nil {
			result.StageFailures[StageClassDetails]++
			metrics.StageItemFailures.WithLabelValues(StageClassDetails).Inc()
			logging.Warn().Err(errs[i]).
				Str("class_id", entries[i].ClassID).
				Msg("Class details fetch failed, keeping bare entry")
			continue
		}
		d := details[i]
		// The listing's start time is kept; the detail response may
		// carry a rescheduled time.
		if d.StartDate != "" && d.StartDate != entries[i].StartDate {
			entries[i].OriginalStartDate = entries[i].StartDate
			entries[i].StartDate = d.StartDate
		}
		entries[i].TeacherName = d.TeacherFirstName
		entries[i].Booked = d.BookedStudents
		entries[i].Standby = d.StandbyStudents
		if ModeOf(entries[i].CategoriesAbbreviations) == models.ModeEncounter {
			entries[i].UnitNumber = d.UnitNumber()
		}
	}
	p.report(StageClassDetails, len(entries), len(entries))
}

func (p *Pipeline) fetchLevelSummaries(ctx context.Context, students []models.Student, result *Result) map[string]*models.LevelSummaries {
	userIDs := make([]string, len(students))
	for i, s := range students {
		userIDs[i] = s.UserID
	}

	cached, err := p.docs.LoadLevelSummaries(ctx, userIDs)
	if err != nil {
		logging.Warn().Err(err).Msg("Cached level summaries unavailable")
		cached = map[string]*models.LevelSummaries{}
	}

	tasks := make([]func(ctx context.Context) (*models.LevelSummaries, error), len(students))
	for i := range students {
		userID := students[i].UserID
		tasks[i] = func(ctx context.Context) (*models.LevelSummaries, error) {
			return p.portal.FetchLevelSummaries(ctx, userID)
		}
	}
	summaries, errs := RunLimited(ctx, p.concurrency, tasks)

	byUser := make(map[string]*models.LevelSummaries, len(students))
	fresh := make(map[string]*models.LevelSummaries)
	for i, userID := range userIDs {
		if errs[i] != nil {
			result.StageFailures[StageLevelSummaries]++
			metrics.StageItemFailures.WithLabelValues(StageLevelSummaries).Inc()
			merged := MergeLevelSummaries(nil, cached[userID])
			if merged != nil {
				byUser[userID] = merged
				logging.Debug().Str("user_id", userID).Msg("Using cached level summaries")
			} else {
				logging.Warn().Err(errs[i]).
					Str("user_id", userID).
					Msg("Level summaries unavailable, no cached fallback")
			}
			continue
		}
		byUser[userID] = MergeLevelSummaries(summaries[i], cached[userID])
		fresh[userID] = summaries[i]
	}

	if err := p.docs.SaveLevelSummaries(ctx, fresh); err != nil {
		logging.Warn().Err(err).Msg("Failed to persist level summaries")
	}
	p.report(StageLevelSummaries, len(students), len(students))
	return byUser
}

// lessonTarget addresses one student occurrence within one entry that
// needs a lesson summary fetch.
type lessonTarget struct {
	entry      *models.ScheduleEntry
	booked     bool
	index      int
	userID     string
	unitID     string
	unitNumber string
}

func (p *Pipeline) fetchLessonSummaries(ctx context.Context, entries []models.ScheduleEntry, summariesByUser map[string]*models.LevelSummaries, result *Result) {
	var targets []lessonTarget
	for i := range entries {
		entry := &entries[i]
		if entry.UnitNumber == "" {
			continue
		}
		collect := func(bookings []models.StudentBooking, booked bool) {
			for j := range bookings {
				userID := bookings[j].Student.UserID
				unitID := ResolveUnitID(summariesByUser[userID], entry.UnitNumber)
				if unitID == "" {
					continue
				}
				targets = append(targets, lessonTarget{
					entry:      entry,
					booked:     booked,
					index:      j,
					userID:     userID,
					unitID:     unitID,
					unitNumber: entry.UnitNumber,
				})
			}
		}
		collect(entry.Booked, true)
		collect(entry.Standby, false)
	}

	tasks := make([]func(ctx context.Context) ([]models.LessonSummary, error), len(targets))
	for i, target := range targets {
		userID, unitID := target.userID, target.unitID
		tasks[i] = func(ctx context.Context) ([]models.LessonSummary, error) {
			return p.portal.FetchLessonSummaries(ctx, userID, unitID)
		}
	}
	lessons, errs := RunLimited(ctx, p.concurrency, tasks)

	for i, target := range targets {
		if errs[i] != nil {
			result.StageFailures[StageLessonSummaries]++
			metrics.StageItemFailures.WithLabelValues(StageLessonSummaries).Inc()
			logging.Debug().Err(errs[i]).
				Str("user_id", target.userID).
				Str("unit_id", target.unitID).
				Msg("Lesson summaries fetch failed")
			continue
		}
		var student *models.Student
		if target.booked {
			student = &target.entry.Booked[target.index].Student
		} else {
			student = &target.entry.Standby[target.index].Student
		}
		if student.LessonSummaries == nil {
			student.LessonSummaries = make(map[string][]models.LessonSummary)
		}
		student.LessonSummaries[target.unitNumber] = lessons[i]
	}
	p.report(StageLessonSummaries, len(targets), len(targets))
}

func (p *Pipeline) report(stage string, completed, total int) {
	if p.progress != nil {
		p.progress(stage, completed, total)
	}
}
