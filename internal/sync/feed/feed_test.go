package feed

import (
	"context"
	"sync"
	"testing"

	"github.com/communekit/core/internal/gateway"
	"github.com/communekit/core/internal/gateway/gatewaytest"
	"github.com/communekit/core/internal/models"
	"github.com/communekit/core/internal/sync/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedNotif(fake *gatewaytest.Fake, recipientID string, read bool) models.Notification {
	return fake.SeedNotification(models.Notification{
		RecipientID: recipientID,
		SenderID:    "sender",
		EventID:     "e1",
		Kind:        models.NotificationReply,
		IsRead:      read,
	})
}

func pushEvent(n models.Notification) gateway.PushEvent {
	return gateway.PushEvent{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		EventID:        n.EventID,
	}
}

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

func TestLoadPagination(t *testing.T) {
	fake := gatewaytest.NewFake()
	for i := 0; i < 5; i++ {
		seedNotif(fake, "u1", false)
	}
	f := New(fake, nil, "u1", 2)

	require.NoError(t, f.Load(true))
	assert.Len(t, f.Items(), 2)
	assert.True(t, f.HasMore())
	assert.EqualValues(t, 5, f.Total())

	require.NoError(t, f.Load(false))
	require.NoError(t, f.Load(false))
	assert.Len(t, f.Items(), 5)
	assert.False(t, f.HasMore())

	calls := fake.Calls("ListNotifications")
	require.NoError(t, f.Load(false))
	assert.Equal(t, calls, fake.Calls("ListNotifications"))
}

func TestLoadDoesNotRecomputeUnreadFromSubset(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedNotif(fake, "u1", false)
	seedNotif(fake, "u1", false)
	seedNotif(fake, "u1", true)
	f := New(fake, nil, "u1", 10)

	require.NoError(t, f.RefreshUnread())
	assert.EqualValues(t, 2, f.Unread())

	require.NoError(t, f.Load(true))
	assert.EqualValues(t, 2, f.Unread(), "loading a page must not touch the counter")
}

func TestPushInsertMergesAndToastsOnce(t *testing.T) {
	fake := gatewaytest.NewFake()
	f := New(fake, nil, "u1", 10)
	toasts := 0
	require.NoError(t, f.Subscribe(func(models.Notification) { toasts++ }))

	n := seedNotif(fake, "u1", false)
	fake.Push("u1", pushEvent(n))

	items := f.Items()
	require.Len(t, items, 1)
	assert.Equal(t, n.ID, items[0].ID)
	assert.EqualValues(t, 1, f.Unread())
	assert.EqualValues(t, 1, f.Total())
	assert.Equal(t, 1, toasts)

	// Redelivery of the same event is absorbed without side effects.
	fake.Push("u1", pushEvent(n))
	assert.Len(t, f.Items(), 1)
	assert.EqualValues(t, 1, f.Unread())
	assert.EqualValues(t, 1, f.Total())
	assert.Equal(t, 1, toasts)
}

func TestPushPrependsNewestFirst(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedNotif(fake, "u1", true)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.Subscribe(nil))

	n := seedNotif(fake, "u1", false)
	fake.Push("u1", pushEvent(n))

	items := f.Items()
	require.Len(t, items, 2)
	assert.Equal(t, n.ID, items[0].ID)
}

func TestPushForItemAlreadyLoadedDoesNotDuplicateOrToast(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	toasts := 0
	require.NoError(t, f.Subscribe(func(models.Notification) { toasts++ }))
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())

	fake.Push("u1", pushEvent(n))

	assert.Len(t, f.Items(), 1)
	assert.EqualValues(t, 1, f.Unread())
	assert.Equal(t, 0, toasts, "a push merged by id into existing state never fires the callback")
}

func TestPushDerefFailureDropsSilently(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Subscribe(nil))

	fake.FailNext("GetNotification", assert.AnError)
	fake.Push("u1", pushEvent(n))

	assert.Empty(t, f.Items())
	assert.EqualValues(t, 0, f.Unread())
}

func TestPushForDeletedRecordDropsSilently(t *testing.T) {
	fake := gatewaytest.NewFake()
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Subscribe(nil))

	fake.Push("u1", gateway.PushEvent{NotificationID: "gone", RecipientID: "u1"})

	assert.Empty(t, f.Items())
	assert.EqualValues(t, 0, f.Unread())
}

func TestPushForOtherRecipientIgnored(t *testing.T) {
	fake := gatewaytest.NewFake()
	other := seedNotif(fake, "u2", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Subscribe(nil))

	fake.Push("u1", pushEvent(other))

	assert.Empty(t, f.Items())
	assert.EqualValues(t, 0, f.Unread())
}

func TestMarkRead(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())
	require.EqualValues(t, 1, f.Unread())

	require.NoError(t, f.MarkRead(n.ID))
	assert.True(t, f.Items()[0].IsRead)
	assert.EqualValues(t, 0, f.Unread())

	// Already read: no-op without a remote round trip.
	calls := fake.Calls("MarkNotificationRead")
	require.NoError(t, f.MarkRead(n.ID))
	assert.Equal(t, calls, fake.Calls("MarkNotificationRead"))

	assert.ErrorIs(t, f.MarkRead("missing"), reconcile.ErrNotFound)
}

func TestMarkReadKeepsOptimisticFlipOnRemoteFailure(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())

	fake.FailNext("MarkNotificationRead", assert.AnError)
	err := f.MarkRead(n.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrRemote)

	// The flip sticks: the remote mark is retryable and converges.
	assert.True(t, f.Items()[0].IsRead)
	assert.EqualValues(t, 0, f.Unread())
}

func TestUnreadNeverGoesNegative(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	// Counter never refreshed: still zero.

	require.NoError(t, f.MarkRead(n.ID))
	assert.EqualValues(t, 0, f.Unread())
}

func TestMarkAllRead(t *testing.T) {
	fake := gatewaytest.NewFake()
	for i := 0; i < 5; i++ {
		seedNotif(fake, "u1", i >= 3)
	}
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())
	require.EqualValues(t, 3, f.Unread())

	require.NoError(t, f.MarkAllRead())
	assert.EqualValues(t, 0, f.Unread())
	for _, item := range f.Items() {
		assert.True(t, item.IsRead)
	}
	assert.Equal(t, 1, fake.Calls("MarkAllNotificationsRead"), "bulk mark is a single remote call")

	// Idempotent against the remote too.
	count, err := fake.CountUnread(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMarkAllReadRollsBackOnRemoteFailure(t *testing.T) {
	fake := gatewaytest.NewFake()
	for i := 0; i < 5; i++ {
		seedNotif(fake, "u1", i >= 3)
	}
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())

	fake.FailNext("MarkAllNotificationsRead", assert.AnError)
	err := f.MarkAllRead()
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrRemote)

	assert.EqualValues(t, 3, f.Unread())
	unread := 0
	for _, item := range f.Items() {
		if !item.IsRead {
			unread++
		}
	}
	assert.Equal(t, 3, unread, "rollback restores exactly the flipped items")
}

func TestDeleteAdjustsCountersForUnreadOnly(t *testing.T) {
	fake := gatewaytest.NewFake()
	read := seedNotif(fake, "u1", true)
	unread := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())
	require.EqualValues(t, 1, f.Unread())
	require.EqualValues(t, 2, f.Total())

	require.NoError(t, f.Delete(read.ID))
	assert.EqualValues(t, 1, f.Unread())
	assert.EqualValues(t, 1, f.Total())

	require.NoError(t, f.Delete(unread.ID))
	assert.EqualValues(t, 0, f.Unread())
	assert.EqualValues(t, 0, f.Total())
	assert.Empty(t, f.Items())
}

func TestDeleteRemoteFailureKeepsItem(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))
	require.NoError(t, f.RefreshUnread())

	fake.FailNext("DeleteNotification", assert.AnError)
	err := f.Delete(n.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrRemote)

	assert.Len(t, f.Items(), 1)
	assert.EqualValues(t, 1, f.Unread())
	assert.EqualValues(t, 1, f.Total())
}

func TestDeleteReentrancyGated(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Load(true))

	started, release := blockMethod(fake, "DeleteNotification")
	done := make(chan error, 1)
	go func() { done <- f.Delete(n.ID) }()
	<-started
	assert.True(t, f.Deleting(n.ID))

	assert.ErrorIs(t, f.Delete(n.ID), reconcile.ErrPending)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.Deleting(n.ID))
}

func TestSubscribeReplacesPriorSubscription(t *testing.T) {
	fake := gatewaytest.NewFake()
	f := New(fake, nil, "u1", 10)

	require.NoError(t, f.Subscribe(nil))
	require.NoError(t, f.Subscribe(nil))
	assert.Equal(t, 1, fake.OpenSubs("u1"), "a recipient holds at most one live subscription")
}

func TestCloseReleasesSubscriptionAndRejectsOperations(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	require.NoError(t, f.Subscribe(nil))

	f.Close()
	assert.Equal(t, 0, fake.OpenSubs("u1"))

	assert.ErrorIs(t, f.Load(true), reconcile.ErrClosed)
	assert.ErrorIs(t, f.MarkAllRead(), reconcile.ErrClosed)
	assert.ErrorIs(t, f.Subscribe(nil), reconcile.ErrClosed)

	// Close is idempotent.
	f.Close()
}

func TestTeardownDiscardsLateLoad(t *testing.T) {
	fake := gatewaytest.NewFake()
	seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)

	started, release := blockMethod(fake, "ListNotifications")
	done := make(chan error, 1)
	go func() { done <- f.Load(true) }()
	<-started

	f.Close()
	close(release)

	assert.ErrorIs(t, <-done, reconcile.ErrClosed)
	assert.Empty(t, f.Items())
}

func TestPushAfterCloseIgnored(t *testing.T) {
	fake := gatewaytest.NewFake()
	n := seedNotif(fake, "u1", false)
	f := New(fake, nil, "u1", 10)
	toasts := 0
	require.NoError(t, f.Subscribe(func(models.Notification) { toasts++ }))

	f.Close()
	// Deliver through the raw handler path regardless of Close ordering.
	f.ingestPush(pushEvent(n))

	assert.Empty(t, f.Items())
	assert.Equal(t, 0, toasts)
}
