package proxy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"proxy-bot/metrics"
	"proxy-bot/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccount = 42
	testGuild   = 7
	testChannel = 10
)

type fixture struct {
	*harness
	sys   model.System
	alice model.Member
	bob   model.Member
	next  int64
}

func newFixture(t *testing.T) *fixture {
	h := newHarness(t)
	sys := h.repo.addSystem(testAccount, model.System{HID: "abcde", Name: "Test System", Tag: "| TS"})
	alice := h.repo.addMember(model.Member{SystemID: sys.ID, HID: "aaaaa", Name: "Alice", ProxyTags: []model.ProxyTag{{Prefix: "a:"}}})
	bob := h.repo.addMember(model.Member{SystemID: sys.ID, HID: "bbbbb", Name: "Bob", ProxyTags: []model.ProxyTag{{Prefix: "[", Suffix: "]"}}})
	return &fixture{harness: h, sys: sys, alice: alice, bob: bob, next: 1000}
}

func (f *fixture) event(content string) model.MessageCreated {
	f.next++
	return model.MessageCreated{
		ID:        f.next,
		ChannelID: testChannel,
		GuildID:   testGuild,
		AuthorID:  testAccount,
		Content:   content,
	}
}

func (f *fixture) setMode(mode model.AutoproxyMode, member int64) {
	f.repo.setSystemGuild(model.SystemGuild{
		SystemID:        f.sys.ID,
		GuildID:         testGuild,
		ProxyEnabled:    true,
		AutoproxyMode:   mode,
		AutoproxyMember: member,
	})
}

func (f *fixture) outcomes(outcome string) float64 {
	return testutil.ToFloat64(f.metrics.ProcessedMessages.WithLabelValues(outcome))
}

func TestProcessTaggedMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.setMode(model.AutoproxyFront, 0)
	ev := f.event("a:hello world")

	res := f.orch.Process(ctx, ev)
	require.Equal(t, StateDone, res.State, res.Err)
	assert.Equal(t, f.alice.ID, res.MemberID)

	created, sent, deleted := f.platform.snapshot()
	require.Len(t, created, 1)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello world", sent[0].Msg.Content)
	assert.Equal(t, "Alice | TS", sent[0].Msg.Username)
	assert.Equal(t, []int64{ev.ID}, deleted)

	record, ok := f.repo.message(res.RelayedID)
	require.True(t, ok)
	assert.Equal(t, model.Message{
		RelayedID:  res.RelayedID,
		ChannelID:  testChannel,
		MemberID:   f.alice.ID,
		SenderID:   testAccount,
		OriginalID: ev.ID,
		GuildID:    testGuild,
	}, record)
	assert.Equal(t, 1, f.repo.messageCount(f.alice.ID))
	assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeRelayed))

	f.orch.HandleDeleted(ctx, model.MessageDeleted{ChannelID: testChannel, IDs: []int64{res.RelayedID}})
	_, ok, err := f.registry.LookupByRelayed(ctx, res.RelayedID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessLeavesMessagesAlone(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(f *fixture)
		ev    func(f *fixture) model.MessageCreated
	}{
		{
			name: "no tag and autoproxy off",
			ev:   func(f *fixture) model.MessageCreated { return f.event("just talking") },
		},
		{
			name: "unknown account",
			ev: func(f *fixture) model.MessageCreated {
				ev := f.event("a:hi")
				ev.AuthorID = 999
				return ev
			},
		},
		{
			name: "direct message",
			ev: func(f *fixture) model.MessageCreated {
				ev := f.event("a:hi")
				ev.GuildID = 0
				return ev
			},
		},
		{
			name: "command prefix",
			ev:   func(f *fixture) model.MessageCreated { return f.event("pk;switch a:") },
		},
		{
			name: "escaped",
			ev:   func(f *fixture) model.MessageCreated { return f.event(`\a:hi`) },
		},
		{
			name: "empty",
			ev:   func(f *fixture) model.MessageCreated { return f.event("   ") },
		},
		{
			name:  "blacklisted channel",
			setup: func(f *fixture) { f.repo.setServer(model.Server{ID: testGuild, Blacklist: []int64{testChannel}}) },
			ev:    func(f *fixture) model.MessageCreated { return f.event("a:hi") },
		},
		{
			name: "proxying disabled in guild",
			setup: func(f *fixture) {
				f.repo.setSystemGuild(model.SystemGuild{SystemID: f.sys.ID, GuildID: testGuild, AutoproxyMode: model.AutoproxyOff})
			},
			ev: func(f *fixture) model.MessageCreated { return f.event("a:hi") },
		},
		{
			name:  "autoproxy member was deleted",
			setup: func(f *fixture) { f.setMode(model.AutoproxyMember, 12345) },
			ev:    func(f *fixture) model.MessageCreated { return f.event("hi") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			res := f.orch.Process(ctx, tt.ev(f))
			assert.Equal(t, StateResolveNone, res.State)
			assert.NoError(t, res.Err)

			created, sent, deleted := f.platform.snapshot()
			assert.Empty(t, created)
			assert.Empty(t, sent)
			assert.Empty(t, deleted)
			assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeUnproxied))
		})
	}
}

func TestProcessAutoproxy(t *testing.T) {
	ctx := context.Background()

	t.Run("latch follows the last speaker", func(t *testing.T) {
		f := newFixture(t)
		f.setMode(model.AutoproxyLatch, 0)

		res := f.orch.Process(ctx, f.event("plain"))
		assert.Equal(t, StateResolveNone, res.State, "nothing latched yet")

		steps := []struct {
			content string
			member  int64
			body    string
		}{
			{"a:first", f.alice.ID, "first"},
			{"untagged", f.alice.ID, "untagged"},
			{"[second]", f.bob.ID, "second"},
			{"still bob", f.bob.ID, "still bob"},
		}
		for _, step := range steps {
			res := f.orch.Process(ctx, f.event(step.content))
			require.Equal(t, StateDone, res.State, step.content)
			assert.Equal(t, step.member, res.MemberID, step.content)
		}
		_, sent, _ := f.platform.snapshot()
		require.Len(t, sent, len(steps))
		for i, step := range steps {
			assert.Equal(t, step.body, sent[i].Msg.Content)
		}

		res = f.orch.Process(ctx, f.event(`\just me`))
		assert.Equal(t, StateResolveNone, res.State)
		res = f.orch.Process(ctx, f.event("bob again"))
		assert.Equal(t, f.bob.ID, res.MemberID, "single escape keeps the latch")

		res = f.orch.Process(ctx, f.event(`\\stop`))
		assert.Equal(t, StateResolveNone, res.State)
		res = f.orch.Process(ctx, f.event("after reset"))
		assert.Equal(t, StateResolveNone, res.State, "double escape clears the latch")
	})

	t.Run("front uses the primary fronter and tags win", func(t *testing.T) {
		f := newFixture(t)
		f.setMode(model.AutoproxyFront, 0)
		_, err := f.switches.RecordSwitch(ctx, f.sys.ID, []int64{f.bob.ID, f.alice.ID}, time.Now())
		require.NoError(t, err)

		res := f.orch.Process(ctx, f.event("hello"))
		assert.Equal(t, f.bob.ID, res.MemberID)
		res = f.orch.Process(ctx, f.event("a:hello"))
		assert.Equal(t, f.alice.ID, res.MemberID)
	})

	t.Run("member mode", func(t *testing.T) {
		f := newFixture(t)
		f.setMode(model.AutoproxyMember, f.alice.ID)
		res := f.orch.Process(ctx, f.event("hello"))
		assert.Equal(t, f.alice.ID, res.MemberID)
	})

	t.Run("switch-out clears the latch", func(t *testing.T) {
		f := newFixture(t)
		f.setMode(model.AutoproxyLatch, 0)
		res := f.orch.Process(ctx, f.event("a:hi"))
		require.Equal(t, StateDone, res.State)

		_, err := f.switches.RecordSwitch(ctx, f.sys.ID, nil, time.Now())
		require.NoError(t, err)
		res = f.orch.Process(ctx, f.event("hi again"))
		assert.Equal(t, StateResolveNone, res.State)
	})
}

func TestProcessFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing permissions leaves the original", func(t *testing.T) {
		f := newFixture(t)
		f.platform.executeErrs = []error{ErrPermission}

		res := f.orch.Process(ctx, f.event("a:hi"))
		assert.Equal(t, StateFailed, res.State)
		assert.ErrorIs(t, res.Err, ErrPermission)

		_, _, deleted := f.platform.snapshot()
		assert.Empty(t, deleted)
		assert.Empty(t, f.repo.messages)
		assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeFailed))
	})

	t.Run("attachment download failure", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.err = errors.New("404")
		ev := f.event("a:look")
		ev.Attachments = []model.Attachment{{ID: 1, Filename: "a.png", URL: "https://cdn/a.png"}}

		res := f.orch.Process(ctx, ev)
		assert.Equal(t, StateFailed, res.State)
		_, sent, deleted := f.platform.snapshot()
		assert.Empty(t, sent)
		assert.Empty(t, deleted)
	})

	t.Run("delete failure still registers", func(t *testing.T) {
		f := newFixture(t)
		f.platform.deleteErrs = []error{ErrPermission}
		ev := f.event("a:hi")

		res := f.orch.Process(ctx, ev)
		require.Equal(t, StateDone, res.State)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DeleteFailures))
		record, ok := f.repo.message(res.RelayedID)
		require.True(t, ok)
		assert.Equal(t, ev.ID, record.OriginalID)
	})

	t.Run("registration failure keeps the relay", func(t *testing.T) {
		f := newFixture(t)
		f.repo.failUpserts = 100
		ev := f.event("a:hi")

		res := f.orch.Process(ctx, ev)
		require.Equal(t, StateDone, res.State)
		_, sent, deleted := f.platform.snapshot()
		assert.Len(t, sent, 1)
		assert.Equal(t, []int64{ev.ID}, deleted, "no compensating delete of the relayed message")
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RegisterFailures))
	})
}

func TestProcessAttachmentsAndLogging(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repo.setServer(model.Server{ID: testGuild, LogChannel: 555})
	data := []byte{0, 1, 2, 0xff, 'x'}
	f.fetcher.files["https://cdn/cat.png"] = data

	ev := f.event("a:")
	ev.Attachments = []model.Attachment{{ID: 9, Filename: "cat.png", ContentType: "image/png", URL: "https://cdn/cat.png", Size: len(data)}}

	res := f.orch.Process(ctx, ev)
	require.Equal(t, StateDone, res.State, res.Err)

	_, sent, _ := f.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Msg.Content)
	require.Len(t, sent[0].Msg.Files, 1)
	assert.Equal(t, model.File{Name: "cat.png", ContentType: "image/png", Data: data}, sent[0].Msg.Files[0])

	f.platform.mu.Lock()
	logs := f.platform.logs
	f.platform.mu.Unlock()
	require.Len(t, logs, 1)
	assert.Equal(t, res.RelayedID, logs[0].RelayedID)
	assert.Equal(t, ev.ID, logs[0].OriginalID)
	assert.Equal(t, "abcde", logs[0].SystemHID)
	assert.Equal(t, "Alice", logs[0].MemberName)
	assert.Equal(t, 1, logs[0].Attachments)
}

func TestDispatchSerializesChannel(t *testing.T) {
	f := newFixture(t)
	f.setMode(model.AutoproxyLatch, 0)

	for _, content := range []string{"a:one", "two", "[three]", "four"} {
		require.True(t, f.orch.Dispatch(f.event(content)))
	}
	f.orch.Close()

	_, sent, _ := f.platform.snapshot()
	require.Len(t, sent, 4)
	names := make([]string, len(sent))
	bodies := make([]string, len(sent))
	for i, s := range sent {
		names[i] = s.Msg.Username
		bodies[i] = s.Msg.Content
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, bodies)
	assert.Equal(t, []string{"Alice | TS", "Alice | TS", "Bob | TS", "Bob | TS"}, names)
	assert.False(t, f.orch.Dispatch(f.event("late")))
}

func TestOriginalDeletedWhileQueued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.platform.beforeSend = func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}

	first := f.event("a:first")
	second := f.event("a:second")
	require.True(t, f.orch.Dispatch(first))
	<-entered
	require.True(t, f.orch.Dispatch(second))
	f.orch.HandleDeleted(ctx, model.MessageDeleted{ChannelID: testChannel, IDs: []int64{second.ID}})
	close(release)
	f.orch.Close()

	_, sent, deleted := f.platform.snapshot()
	require.Len(t, sent, 1)
	assert.Equal(t, "first", sent[0].Msg.Content)
	assert.Equal(t, []int64{first.ID}, deleted)
	assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeFailed))
	assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeRelayed))
}

func TestRedeliveredMessageSeesLaterDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var sends int32
	blocked := make(chan struct{})
	gated := make(chan struct{})
	releaseBlocker := make(chan struct{})
	releaseGate := make(chan struct{})
	f.platform.beforeSend = func() {
		switch atomic.AddInt32(&sends, 1) {
		case 1:
			close(blocked)
			<-releaseBlocker
		case 3:
			close(gated)
			<-releaseGate
		}
	}

	blocker := f.event("a:blocker")
	dup := f.event("a:twice")
	gate := f.event("a:gate")
	require.True(t, f.orch.Dispatch(blocker))
	<-blocked
	require.True(t, f.orch.Dispatch(dup))
	require.True(t, f.orch.Dispatch(gate))
	require.True(t, f.orch.Dispatch(dup))

	close(releaseBlocker)
	<-gated
	// The first copy of dup is finished; its original is now gone.
	f.orch.HandleDeleted(ctx, model.MessageDeleted{ChannelID: testChannel, IDs: []int64{dup.ID}})
	close(releaseGate)
	f.orch.Close()

	_, sent, deleted := f.platform.snapshot()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"blocker", "twice", "gate"},
		[]string{sent[0].Msg.Content, sent[1].Msg.Content, sent[2].Msg.Content})
	assert.Equal(t, []int64{blocker.ID, dup.ID, gate.ID}, deleted)
	assert.Equal(t, float64(3), f.outcomes(metrics.OutcomeRelayed))
	assert.Equal(t, float64(1), f.outcomes(metrics.OutcomeFailed))
	assert.Zero(t, f.orch.QueuedChannels())
}

func TestOriginalDeletedDuringRelay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ev := f.event("a:hi")
	f.platform.beforeSend = func() {
		f.orch.HandleDeleted(ctx, model.MessageDeleted{ChannelID: testChannel, IDs: []int64{ev.ID}})
	}

	res := f.orch.Process(ctx, ev)
	require.Equal(t, StateDone, res.State)

	_, _, deleted := f.platform.snapshot()
	assert.Empty(t, deleted, "original already gone")
	record, ok := f.repo.message(res.RelayedID)
	require.True(t, ok)
	assert.Zero(t, record.OriginalID)
	assert.False(t, record.HasOriginal())
}
