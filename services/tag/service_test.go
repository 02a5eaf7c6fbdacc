package tag

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

	"taskplane/pkg/errutil"
	"taskplane/services/audit"
	"taskplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// taskStub stands in for the tasks table so usage counts can be exercised
// without importing the task package.
type taskStub struct {
	ID        string `gorm:"column:id;primaryKey"`
	OwnerID   string `gorm:"column:owner_id"`
	IsDeleted bool   `gorm:"column:is_deleted"`
}

func (taskStub) TableName() string { return "tasks" }

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Tag{}, &TaskTag{}, &taskStub{}, &audit.Event{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Recorder: audit.NewRecorder(db, node),
		History:  audit.NewService(audit.ServiceParams{DB: db, Node: node}),
	})
	return svc, db
}

func TestCreateNormalizesAndRecords(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "  Work  ")
	require.NoError(t, err)
	require.Equal(t, "Work", tg.Name)
	require.Equal(t, "work", tg.NameLower)
	require.Equal(t, "user-1", tg.OwnerID)

	var events []*audit.Event
	require.NoError(t, db.Find(&events, "entity_id = ?", tg.ID).Error)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionCreate, events[0].Action)
}

func TestCreateRejectsInvalidNames(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", "   ")
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Create(ctx, "user-1", string(long))
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestCreateNameLimitCountsCharacters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// 50 two-byte characters are 100 bytes but still a valid name.
	tg, err := svc.Create(ctx, "user-1", strings.Repeat("ü", 50))
	require.NoError(t, err)
	require.Equal(t, 50, utf8.RuneCountInString(tg.Name))

	_, err = svc.Create(ctx, "user-1", strings.Repeat("ü", 51))
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestCreateDuplicateIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-1", "WORK")
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}

func TestConcurrentDuplicateClassifiesAsConflict(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	// A concurrent writer slips past the pre-insert lookup and lands on the
	// (owner_id, name_lower) unique index instead. That storage error must
	// classify as a name collision, not an internal fault.
	raw := db.Create(&Tag{
		ID:        "dup",
		OwnerID:   "user-1",
		Name:      "WORK",
		NameLower: "work",
		CreatedAt: time.Now().UTC(),
	}).Error
	require.Error(t, raw)
	require.True(t, duplicateName(raw))
}

func TestCreateSameNameDifferentOwners(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-2", "Work")
	require.NoError(t, err)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	_, err = svc.Get(ctx, "user-2", tg.ID)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	_, err = svc.Get(ctx, "user-1", "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestListCountsOnlyLiveTasks(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	work, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)
	home, err := svc.Create(ctx, "user-1", "Home")
	require.NoError(t, err)

	require.NoError(t, db.Create(&taskStub{ID: "t1", OwnerID: "user-1"}).Error)
	require.NoError(t, db.Create(&taskStub{ID: "t2", OwnerID: "user-1", IsDeleted: true}).Error)
	require.NoError(t, db.Create(&TaskTag{TaskID: "t1", TagID: work.ID}).Error)
	require.NoError(t, db.Create(&TaskTag{TaskID: "t2", TagID: work.ID}).Error)

	tags, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, tags, 2)

	// Ordered by lowercase name.
	require.Equal(t, home.ID, tags[0].ID)
	require.EqualValues(t, 0, tags[0].TaskCount)
	require.Equal(t, work.ID, tags[1].ID)
	require.EqualValues(t, 1, tags[1].TaskCount)
}

func TestRename(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "user-1", "Home")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, "user-1", tg.ID, "Office")
	require.NoError(t, err)
	require.Equal(t, "Office", renamed.Name)
	require.Equal(t, "office", renamed.NameLower)

	// Renaming onto another tag's name collides case-insensitively.
	_, err = svc.Rename(ctx, "user-1", tg.ID, "HOME")
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	var events []*audit.Event
	require.NoError(t, db.Find(&events, "entity_id = ? AND action = ?", tg.ID, audit.ActionUpdate).Error)
	require.Len(t, events, 1)
	require.Equal(t, "name", *events[0].FieldChanged)
	require.JSONEq(t, `"Work"`, string(events[0].OldValue))
	require.JSONEq(t, `"Office"`, string(events[0].NewValue))
}

func TestRenameToSameNameIsNoOp(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	_, err = svc.Rename(ctx, "user-1", tg.ID, "Work")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&audit.Event{}).Where("entity_id = ? AND action = ?", tg.ID, audit.ActionUpdate).Count(&count).Error)
	require.Zero(t, count)
}

func TestDeleteCascadesAssociationsOnly(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	require.NoError(t, db.Create(&taskStub{ID: "t1", OwnerID: "user-1"}).Error)
	require.NoError(t, db.Create(&TaskTag{TaskID: "t1", TagID: tg.ID}).Error)

	require.NoError(t, svc.Delete(ctx, "user-1", tg.ID))

	var links int64
	require.NoError(t, db.Model(&TaskTag{}).Where("tag_id = ?", tg.ID).Count(&links).Error)
	require.Zero(t, links)

	var tasks int64
	require.NoError(t, db.Model(&taskStub{}).Count(&tasks).Error)
	require.EqualValues(t, 1, tasks)

	_, err = svc.Get(ctx, "user-1", tg.ID)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestHistoryRequiresOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tg, err := svc.Create(ctx, "user-1", "Work")
	require.NoError(t, err)

	_, err = svc.History(ctx, "user-2", tg.ID)
	require.Equal(t, errutil.StatusForbidden, errutil.StatusOf(err))

	events, err := svc.History(ctx, "user-1", tg.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, audit.ActionCreate, events[0].Action)
}
