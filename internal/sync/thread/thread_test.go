package thread

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/gateway/gatewaytest"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/sync/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	member    = reconcile.Actor{ID: "u1", Role: models.RoleMember}
	moderator = reconcile.Actor{ID: "mod", Role: models.RoleModerator}
)

func seedRoot(fake *gatewaytest.Fake, eventID, content string) models.Comment {
	return fake.SeedComment(models.Comment{EventID: eventID, AuthorID: "seed", Content: content})
}

func seedReply(fake *gatewaytest.Fake, parent models.Comment, content string) models.Comment {
	return fake.SeedComment(models.Comment{
		EventID:  parent.EventID,
		AuthorID: "seed",
		Content:  content,
		ParentID: &parent.ID,
	})
}

// blockMethod stalls the named gateway method until release is closed.
func blockMethod(fake *gatewaytest.Fake, method string) (started chan struct{}, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	fake.SetGate(func(m string) {
		if m != method {
			return
		}
		once.Do(func() { close(started) })
		<-release
	})
	return started, release
}

func TestLoadRootsPagination(t *testing.T) {
	fake := gatewaytest.NewFake()
	for i := 0; i < 5; i++ {
		seedRoot(fake, "e1", "root")
	}
	c := New(fake, nil, Config{EventID: "e1", PageSize: 2, Direction: gateway.Asc})

	require.NoError(t, c.LoadRoots(true))
	assert.Len(t, c.Roots(), 2)
	assert.True(t, c.HasMore())
	assert.EqualValues(t, 5, c.Total())

	require.NoError(t, c.LoadRoots(false))
	require.NoError(t, c.LoadRoots(false))
	assert.Len(t, c.Roots(), 5)
	assert.False(t, c.HasMore())

	// Exhausted cursor makes further loadMore calls no-ops.
	calls := fake.Calls("ListComments")
	require.NoError(t, c.LoadRoots(false))
	assert.Equal(t, calls, fake.Calls("ListComments"))

	// Reset replaces and rewinds.
	require.NoError(t, c.LoadRoots(true))
	assert.Len(t, c.Roots(), 2)
	assert.True(t, c.HasMore())
}

func TestLoadRootsInFlightSuppressesSecond(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})

	started, release := blockMethod(fake, "ListComments")
	done := make(chan error, 1)
	go func() { done <- c.LoadRoots(true) }()
	<-started

	require.NoError(t, c.LoadRoots(false))
	assert.Equal(t, 1, fake.Calls("ListComments"))

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, c.Roots(), 1)
}

func TestLoadRootsFailureKeepsPriorData(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	fake.FailNext("ListComments", assert.AnError)
	err := c.LoadRoots(true)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrRemote)
	assert.Len(t, c.Roots(), 1)
	assert.Error(t, c.LoadErr())

	// Next successful load clears the error flag.
	require.NoError(t, c.LoadRoots(true))
	assert.NoError(t, c.LoadErr())
}

func TestCreateValidationBoundary(t *testing.T) {
	fake := gatewaytest.NewFake()
	c := New(fake, nil, Config{EventID: "e1"})

	for _, content := range []string{"", " ", strings.Repeat("a", 2001)} {
		_, err := c.Create(member, content, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, reconcile.ErrValidation)
	}
	assert.Equal(t, 0, fake.Calls("CreateComment"), "rejected content must not reach the gateway")

	for _, content := range []string{"a", strings.Repeat("a", 2000)} {
		_, err := c.Create(member, content, nil, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fake.Calls("CreateComment"))
}

func TestCreateRequiresActor(t *testing.T) {
	fake := gatewaytest.NewFake()
	c := New(fake, nil, Config{EventID: "e1"})

	_, err := c.Create(reconcile.Actor{}, "hello", nil, nil)
	assert.ErrorIs(t, err, reconcile.ErrUnauthorized)
	assert.Equal(t, 0, fake.Calls("CreateComment"))
}

func TestCreateRootHonorsSortDirection(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedRoot(fake, "e1", "old")

	desc := New(fake, nil, Config{EventID: "e1", Direction: gateway.Desc})
	require.NoError(t, desc.LoadRoots(true))
	cm, err := desc.Create(member, "new", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cm.ID, desc.Roots()[0].ID, "descending thread prepends")

	asc := New(fake, nil, Config{EventID: "e1", Direction: gateway.Asc})
	require.NoError(t, asc.LoadRoots(true))
	cm, err = asc.Create(member, "newest", nil, nil)
	require.NoError(t, err)
	roots := asc.Roots()
	assert.Equal(t, cm.ID, roots[len(roots)-1].ID, "ascending thread appends")
}

func TestCreateDoesNotDuplicateAgainstRacingLoad(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedRoot(fake, "e1", "r1")
	seedRoot(fake, "e1", "r2")
	seedRoot(fake, "e1", "r3")
	c := New(fake, nil, Config{EventID: "e1", PageSize: 2, Direction: gateway.Asc})
	require.NoError(t, c.LoadRoots(true))

	started, release := blockMethod(fake, "ListComments")
	done := make(chan error, 1)
	go func() { done <- c.LoadRoots(false) }()
	<-started

	cm, err := c.Create(member, "raced", nil, nil)
	require.NoError(t, err)

	close(release)
	require.NoError(t, <-done)

	count := 0
	for _, r := range c.Roots() {
		if r.ID == cm.ID {
			count++
		}
	}
	assert.Equal(t, 1, count, "confirmed id already present must not insert twice")
	assert.Len(t, c.Roots(), 4)
}

func TestReplyIsolation(t *testing.T) {
	fake := gatewaytest.NewFake()
	parent := seedRoot(fake, "e1", "root")
	seedReply(fake, parent, "first")
	seedReply(fake, parent, "second")
	c := New(fake, nil, Config{EventID: "e1"})

	assert.Empty(t, c.Replies(parent.ID), "replies are empty before loading")

	require.NoError(t, c.LoadReplies(parent.ID))
	replies := c.Replies(parent.ID)
	require.Len(t, replies, 2)
	assert.Equal(t, "first", replies[0].Content)
	assert.Equal(t, "second", replies[1].Content)

	// Populated set makes a second load a no-op.
	calls := fake.Calls("ListReplies")
	require.NoError(t, c.LoadReplies(parent.ID))
	assert.Equal(t, calls, fake.Calls("ListReplies"))
}

func TestReplyCreation(t *testing.T) {
	fake := gatewaytest.NewFake()
	c1 := seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	require.NoError(t, c.LoadReplies(c1.ID))
	assert.Empty(t, c.Replies(c1.ID))

	cm, err := c.Create(member, "hi", &c1.ID, nil)
	require.NoError(t, err)

	replies := c.Replies(c1.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, "hi", replies[0].Content)
	require.NotNil(t, replies[0].ParentID)
	assert.Equal(t, c1.ID, *replies[0].ParentID)
	assert.Equal(t, cm.ID, replies[0].ID)
}

func TestReplyCreatedBeforeLoadIsReachableAfterLoad(t *testing.T) {
	fake := gatewaytest.NewFake()
	parent := seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	// Reply list never loaded: the create must not materialize it locally.
	cm, err := c.Create(member, "early reply", &parent.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, c.Replies(parent.ID))

	require.NoError(t, c.LoadReplies(parent.ID))
	replies := c.Replies(parent.ID)
	require.Len(t, replies, 1)
	assert.Equal(t, cm.ID, replies[0].ID)
}

func TestCreateWithQuote(t *testing.T) {
	fake := gatewaytest.NewFake()
	quoted := seedRoot(fake, "e1", "original words")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	cm, err := c.Create(member, "agreed", nil, &Quote{Text: "original words", CommentID: quoted.ID})
	require.NoError(t, err)
	require.NotNil(t, cm.QuotedText)
	assert.Equal(t, "original words", *cm.QuotedText)
	require.NotNil(t, cm.QuotedCommentID)
	assert.Equal(t, quoted.ID, *cm.QuotedCommentID)
}

func TestUpdateRequiresModerator(t *testing.T) {
	fake := gatewaytest.NewFake()
	cm := seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	err := c.Update(member, cm.ID, "edited")
	assert.ErrorIs(t, err, reconcile.ErrUnauthorized)
	assert.Equal(t, 0, fake.Calls("UpdateComment"))

	require.NoError(t, c.Update(moderator, cm.ID, "edited"))
	got := c.Get(cm.ID)
	require.NotNil(t, got)
	assert.Equal(t, "edited", got.Content)
	assert.True(t, got.IsEdited)
	assert.NotNil(t, got.EditedAt)
}

func TestUpdateReentrancyGated(t *testing.T) {
	fake := gatewaytest.NewFake()
	cm := seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	started, release := blockMethod(fake, "UpdateComment")
	done := make(chan error, 1)
	go func() { done <- c.Update(moderator, cm.ID, "first") }()
	<-started
	assert.True(t, c.Updating(cm.ID))

	err := c.Update(moderator, cm.ID, "second")
	assert.ErrorIs(t, err, reconcile.ErrPending)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Updating(cm.ID))
	assert.Equal(t, "first", c.Get(cm.ID).Content)
}

func TestDeleteWinsOverInFlightUpdate(t *testing.T) {
	fake := gatewaytest.NewFake()
	cm := seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))

	started, release := blockMethod(fake, "UpdateComment")
	done := make(chan error, 1)
	go func() { done <- c.Update(moderator, cm.ID, "edit") }()
	<-started

	require.NoError(t, c.Delete(moderator, cm.ID))
	close(release)
	<-done

	assert.Nil(t, c.Get(cm.ID), "delete confirmation removes the entity regardless of the update outcome")
}

func TestDeleteRemovesCommentAndItsReplies(t *testing.T) {
	fake := gatewaytest.NewFake()
	parent := seedRoot(fake, "e1", "root")
	seedReply(fake, parent, "child")
	c := New(fake, nil, Config{EventID: "e1"})
	require.NoError(t, c.LoadRoots(true))
	require.NoError(t, c.LoadReplies(parent.ID))
	require.Len(t, c.Replies(parent.ID), 1)

	require.NoError(t, c.Delete(moderator, parent.ID))
	assert.Nil(t, c.Get(parent.ID))
	assert.Empty(t, c.Replies(parent.ID))
	assert.Empty(t, c.Roots())
}

func TestTeardownDiscardsLateLoad(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedRoot(fake, "e1", "root")
	c := New(fake, nil, Config{EventID: "e1"})

	started, release := blockMethod(fake, "ListComments")
	done := make(chan error, 1)
	go func() { done <- c.LoadRoots(true) }()
	<-started

	c.Close()
	close(release)

	err := <-done
	assert.ErrorIs(t, err, reconcile.ErrClosed)
	assert.Empty(t, c.Roots(), "late-arriving response must not populate a torn-down cache")
}

func TestClosedCacheRejectsOperations(t *testing.T) {
	fake := gatewaytest.NewFake()
	c := New(fake, nil, Config{EventID: "e1"})
	c.Close()

	assert.ErrorIs(t, c.LoadRoots(true), reconcile.ErrClosed)
	assert.ErrorIs(t, c.LoadReplies("x"), reconcile.ErrClosed)
	_, err := c.Create(member, "hello", nil, nil)
	assert.ErrorIs(t, err, reconcile.ErrClosed)

	// Close is idempotent.
	c.Close()
}

func TestLoadRepliesInFlightSuppressed(t *testing.T) {
	fake := gatewaytest.NewFake()
	parent := seedRoot(fake, "e1", "root")
	seedReply(fake, parent, "child")
	c := New(fake, nil, Config{EventID: "e1"})

	started, release := blockMethod(fake, "ListReplies")
	done := make(chan error, 1)
	go func() { done <- c.LoadReplies(parent.ID) }()
	<-started
	assert.True(t, c.LoadingReplies(parent.ID))

	require.NoError(t, c.LoadReplies(parent.ID))
	assert.Equal(t, 1, fake.Calls("ListReplies"))

	close(release)
	require.NoError(t, <-done)

	deadline := time.Now().Add(time.Second)
	for c.LoadingReplies(parent.ID) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.False(t, c.LoadingReplies(parent.ID))
	assert.Len(t, c.Replies(parent.ID), 1)
}
