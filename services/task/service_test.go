package task

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"taskplane/pkg/config"
	"taskplane/pkg/db/pagination"
	"taskplane/pkg/errutil"
	"taskplane/pkg/recurrence"
	"taskplane/services/audit"
	"taskplane/services/tag"
	"taskplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Task{}, &tag.Tag{}, &tag.TaskTag{}, &audit.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Query.DefaultPageSize = 25
	cfg.Query.MaxPageSize = 100

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Recorder: audit.NewRecorder(db, node),
		History:  audit.NewService(audit.ServiceParams{DB: db, Node: node}),
	})
	return svc, db
}

func createTag(t *testing.T, db *gorm.DB, owner, name string) *tag.Tag {
	t.Helper()
	tg := &tag.Tag{
		ID:        name + "-" + owner,
		OwnerID:   owner,
		Name:      name,
		NameLower: name,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(tg).Error)
	return tg
}

func eventsFor(t *testing.T, db *gorm.DB, entityID string) []*audit.Event {
	t.Helper()
	var events []*audit.Event
	require.NoError(t, db.Order("created_at ASC, id ASC").Find(&events, "entity_id = ?", entityID).Error)
	return events
}

func TestCreate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg := createTag(t, db, "user-1", "work")
	due := time.Now().UTC().Add(48 * time.Hour)

	created, err := svc.Create(ctx, "user-1", CreateRequest{
		Title:   "  Write report  ",
		DueDate: &due,
		TagIDs:  []string{tg.ID},
	})
	require.NoError(t, err)
	require.Equal(t, "Write report", created.Title)
	require.Equal(t, PriorityMedium, created.Priority)
	require.Equal(t, recurrence.None, created.Recurrence)
	require.Len(t, created.Tags, 1)

	events := eventsFor(t, db, created.ID)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionCreate, events[0].Action)
	require.Equal(t, "user-1", *events[0].ActorID)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CreateRequest{Title: "   "})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.Create(ctx, "user-1", CreateRequest{Title: "ok", Priority: "urgent"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.Create(ctx, "user-1", CreateRequest{Title: "ok", Recurrence: "yearly"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestValidationCountsCharactersNotBytes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// 200 CJK characters are 600 bytes but still a valid title.
	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: strings.Repeat("日", 200)})
	require.NoError(t, err)
	require.Equal(t, 200, utf8.RuneCountInString(created.Title))

	_, err = svc.Create(ctx, "user-1", CreateRequest{Title: strings.Repeat("日", 201)})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	_, err = svc.Create(ctx, "user-1", CreateRequest{Title: "ok", Description: strings.Repeat("é", 2000)})
	require.NoError(t, err)

	title := strings.Repeat("ё", 200)
	_, err = svc.Update(ctx, "user-1", created.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)
}

func TestCreateRejectsForeignTags(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	foreign := createTag(t, db, "user-2", "work")

	_, err := svc.Create(ctx, "user-1", CreateRequest{Title: "ok", TagIDs: []string{foreign.ID}})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	// Nothing committed: the tasks table stays empty.
	var count int64
	require.NoError(t, db.Model(&Task{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "mine"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "user-2", created.ID)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	_, err = svc.Get(ctx, "user-1", "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestUpdateRecordsOneEventPerChangedField(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Draft"})
	require.NoError(t, err)

	title := "Final"
	priority := PriorityHigh
	updated, err := svc.Update(ctx, "user-1", created.ID, UpdateRequest{
		Title:    &title,
		Priority: &priority,
	})
	require.NoError(t, err)
	require.Equal(t, "Final", updated.Title)
	require.Equal(t, PriorityHigh, updated.Priority)

	var fields []string
	for _, e := range eventsFor(t, db, created.ID) {
		if e.Action == audit.ActionUpdate {
			fields = append(fields, *e.FieldChanged)
		}
	}
	require.ElementsMatch(t, []string{"title", "priority"}, fields)
}

func TestUpdateWithoutChangesRecordsNothing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Same"})
	require.NoError(t, err)

	title := "Same"
	_, err = svc.Update(ctx, "user-1", created.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)

	events := eventsFor(t, db, created.ID)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionCreate, events[0].Action)
}

func TestUpdateTagSet(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	work := createTag(t, db, "user-1", "work")
	home := createTag(t, db, "user-1", "home")

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Errand", TagIDs: []string{work.ID}})
	require.NoError(t, err)

	newSet := []string{home.ID}
	updated, err := svc.Update(ctx, "user-1", created.ID, UpdateRequest{TagIDs: &newSet})
	require.NoError(t, err)
	require.Len(t, updated.Tags, 1)
	require.Equal(t, home.ID, updated.Tags[0].ID)

	var fields []string
	for _, e := range eventsFor(t, db, created.ID) {
		if e.Action == audit.ActionUpdate {
			fields = append(fields, *e.FieldChanged)
		}
	}
	require.Equal(t, []string{"tags"}, fields)
}

func TestCompleteNonRecurring(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "One shot"})
	require.NoError(t, err)

	done, next, err := svc.Complete(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)
	require.Nil(t, next)

	// Completing again is a no-op and records nothing new.
	_, next, err = svc.Complete(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.Nil(t, next)

	var count int64
	require.NoError(t, db.Model(&audit.Event{}).
		Where("entity_id = ? AND action = ?", created.ID, audit.ActionComplete).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCompleteRecurringSpawnsSuccessor(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg := createTag(t, db, "user-1", "bills")
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	created, err := svc.Create(ctx, "user-1", CreateRequest{
		Title:      "Pay rent",
		Priority:   PriorityHigh,
		DueDate:    &due,
		Recurrence: recurrence.Daily,
		TagIDs:     []string{tg.ID},
	})
	require.NoError(t, err)

	done, next, err := svc.Complete(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.True(t, done.IsCompleted)
	require.NotNil(t, next)

	require.False(t, next.IsCompleted)
	require.Equal(t, "Pay rent", next.Title)
	require.Equal(t, PriorityHigh, next.Priority)
	require.Equal(t, recurrence.Daily, next.Recurrence)
	require.NotNil(t, next.DueDate)
	require.True(t, next.DueDate.Equal(due.AddDate(0, 0, 1)))

	// The successor inherits the tag set.
	require.Len(t, next.Tags, 1)
	require.Equal(t, tg.ID, next.Tags[0].ID)

	events := eventsFor(t, db, next.ID)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionRecurringAutoCreate, events[0].Action)
	require.Nil(t, events[0].ActorID)
	require.True(t, events[0].SystemAction)
}

func TestCompleteRecurringWithoutDueDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{
		Title:      "Tidy desk",
		Recurrence: recurrence.Weekly,
	})
	require.NoError(t, err)

	done, next, err := svc.Complete(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.True(t, done.IsCompleted)
	require.Nil(t, next)
}

func TestUncomplete(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Redo"})
	require.NoError(t, err)

	_, _, err = svc.Complete(ctx, "user-1", created.ID)
	require.NoError(t, err)

	reopened, err := svc.Uncomplete(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.False(t, reopened.IsCompleted)
	require.Nil(t, reopened.CompletedAt)

	// Reopening an open task records nothing new.
	_, err = svc.Uncomplete(ctx, "user-1", created.ID)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&audit.Event{}).
		Where("entity_id = ? AND action = ?", created.ID, audit.ActionUncomplete).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDeleteIsSoft(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Gone"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1", created.ID))

	// The row survives with the deletion markers set.
	var stored Task
	require.NoError(t, db.First(&stored, "id = ?", created.ID).Error)
	require.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedAt)
	require.Equal(t, "user-1", *stored.DeletedBy)

	// The owner sees it as gone; a second delete behaves the same.
	_, err = svc.Get(ctx, "user-1", created.ID)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(svc.Delete(ctx, "user-1", created.ID)))

	// Another user still may not probe it.
	_, err = svc.Get(ctx, "user-2", created.ID)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	// The audit trail outlives the task.
	events := eventsFor(t, db, created.ID)
	require.Len(t, events, 2)
	require.Equal(t, audit.ActionDelete, events[1].Action)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg := createTag(t, db, "user-1", "work")

	for _, title := range []string{"Alpha report", "Beta report", "Gamma note"} {
		_, err := svc.Create(ctx, "user-1", CreateRequest{Title: title})
		require.NoError(t, err)
	}
	tagged, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Tagged", TagIDs: []string{tg.ID}})
	require.NoError(t, err)
	_, _, err = svc.Complete(ctx, "user-1", tagged.ID)
	require.NoError(t, err)

	// Someone else's task never shows up.
	_, err = svc.Create(ctx, "user-2", CreateRequest{Title: "Foreign"})
	require.NoError(t, err)

	all, err := svc.List(ctx, "user-1", ListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 4, all.PageInfo.TotalItems)

	completed := true
	result, err := svc.List(ctx, "user-1", ListFilter{Completed: &completed})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, tagged.ID, result.Tasks[0].ID)

	result, err = svc.List(ctx, "user-1", ListFilter{TagID: tg.ID})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)

	result, err = svc.List(ctx, "user-1", ListFilter{Search: "report"})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 2)

	page, err := svc.List(ctx, "user-1", ListFilter{
		Pagination: pagination.Pagination{Page: 1, PageSize: 3},
	})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 3)
	require.EqualValues(t, 4, page.PageInfo.TotalItems)
	require.EqualValues(t, 2, page.PageInfo.TotalPages)
}

func TestListExcludesDeleted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	keep, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Keep"})
	require.NoError(t, err)
	drop, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Drop"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "user-1", drop.ID))

	result, err := svc.List(ctx, "user-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, keep.ID, result.Tasks[0].ID)
}

func TestListRejectsUnknownSortColumn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "user-1", ListFilter{SortBy: "owner_id"})
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestListOverdue(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-24 * time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	late, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Late", DueDate: &past})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", CreateRequest{Title: "Upcoming", DueDate: &future})
	require.NoError(t, err)

	// A completed task is never overdue.
	lateDone, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Late done", DueDate: &past})
	require.NoError(t, err)
	require.NoError(t, db.Model(&Task{}).Where("id = ?", lateDone.ID).Update("is_completed", true).Error)

	result, err := svc.List(ctx, "user-1", ListFilter{Overdue: true})
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, late.ID, result.Tasks[0].ID)
}

func TestExportReturnsEverythingMatching(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Task"})
		require.NoError(t, err)
	}

	tasks, err := svc.Export(ctx, "user-1", ListFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 5)
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "user-1", CreateRequest{Title: "Track me"})
	require.NoError(t, err)

	title := "Tracked"
	_, err = svc.Update(ctx, "user-1", created.ID, UpdateRequest{Title: &title})
	require.NoError(t, err)

	events, err := svc.History(ctx, "user-1", created.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, audit.ActionUpdate, events[0].Action)
	require.Equal(t, audit.ActionCreate, events[1].Action)

	_, err = svc.History(ctx, "user-2", created.ID)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))
}
