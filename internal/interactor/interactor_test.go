package interactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/cache"
	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/position"
	"github.com/TankGameOrg/ui-sub000/internal/source"
	"github.com/TankGameOrg/ui-sub000/internal/version"
)

// fakeEngine is a scripted in-process engine. Every call checks that no
// other call is in flight, which is how the serialization tests catch
// overlapping engine traffic.
type fakeEngine struct {
	inFlight int32
	overlap  atomic.Bool
	delay    time.Duration

	mu        sync.Mutex
	lastSet   engine.State
	setCount  int
	processed []*logbook.Entry

	// process decides each ProcessAction outcome. Defaults to counting
	// accepted entries into state["turns"].
	process func(entry *logbook.Entry, prev engine.State) (engine.State, error)
}

func (f *fakeEngine) enter() {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		f.overlap.Store(true)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeEngine) exit() { atomic.AddInt32(&f.inFlight, -1) }

func (f *fakeEngine) SetBoardState(ctx context.Context, state engine.State) error {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSet = state
	f.setCount++
	return nil
}

func (f *fakeEngine) ProcessAction(ctx context.Context, entry *logbook.Entry) (engine.State, error) {
	f.enter()
	defer f.exit()
	f.mu.Lock()
	defer f.mu.Unlock()

	proc := f.process
	if proc == nil {
		proc = func(entry *logbook.Entry, prev engine.State) (engine.State, error) {
			turns := 0
			if n, ok := prev["turns"].(int); ok {
				turns = n
			}
			next := prev.Clone()
			next["turns"] = turns + 1
			return next, nil
		}
	}
	state, err := proc(entry, f.lastSet)
	if err == nil {
		f.processed = append(f.processed, entry)
	}
	return state, err
}

func (f *fakeEngine) PossibleActions(ctx context.Context, player string) ([]engine.Rule, error) {
	f.enter()
	defer f.exit()
	return nil, nil
}

func (f *fakeEngine) LineOfSight(ctx context.Context, player string) ([]position.Position, error) {
	f.enter()
	defer f.exit()
	return nil, nil
}

func (f *fakeEngine) Shutdown(ctx context.Context) error { return nil }

func (f *fakeEngine) processedEntries() []*logbook.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*logbook.Entry(nil), f.processed...)
}

// stubSource offers a free-form "move" action to any named player.
type stubSource struct{}

func (stubSource) ActionsForPlayer(ctx context.Context, q source.Query) ([]action.PossibleAction, error) {
	if q.PlayerName == "" {
		return nil, nil
	}
	subject, err := action.NewFieldSpec("subject", action.FieldInput, nil)
	if err != nil {
		return nil, err
	}
	seq, err := action.NewFieldSpec("seq", action.FieldInputNumber, nil)
	if err != nil {
		return nil, err
	}
	a := action.NewGenericAction("move",
		action.NewSetValueSpec("action", "move"),
		subject, seq,
	)
	return []action.PossibleAction{a}, nil
}

func testRuleset(extra ...source.ActionSource) *version.Ruleset {
	sources := append([]source.ActionSource{source.NewStartOfDaySource(), stubSource{}}, extra...)
	return &version.Ruleset{
		Name:    "test",
		Sources: source.NewSet(sources...),
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func moveRaw(seq int) map[string]any {
	return map[string]any{"action": "move", "subject": "Corey", "seq": seq}
}

// seedBook returns a book of one start_of_day plus n moves, all on day 1.
func seedBook(t *testing.T, n int) *logbook.Book {
	t.Helper()
	b := logbook.New()
	_, err := b.AddEntry(b.MakeEntryFromRaw(map[string]any{"day": 1}))
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := b.AddEntry(b.MakeEntryFromRaw(moveRaw(i)))
		require.NoError(t, err)
	}
	return b
}

func TestNewReplaysUnreplayedEntries(t *testing.T) {
	eng := &fakeEngine{}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
		Book:    seedBook(t, 2),
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	assert.Equal(t, 3, i.StateCount())
	assert.Len(t, eng.processedEntries(), 3)

	// Each derived state reflects its prefix of the log.
	last, err := i.StateByID(2)
	require.NoError(t, err)
	assert.Equal(t, 3, last["turns"])

	mid, err := i.StateByID(0)
	require.NoError(t, err)
	assert.Equal(t, 1, mid["turns"])
}

func TestNewResumesPartialReplay(t *testing.T) {
	// A session resumed with k derived states must end in the same states
	// as one that replayed from scratch.
	full := &fakeEngine{}
	fromScratch, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  full,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
		Book:    seedBook(t, 2),
	})
	require.NoError(t, err)
	defer fromScratch.Close(context.Background())

	partial := &fakeEngine{}
	resumed, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  partial,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
		Book:    seedBook(t, 2),
		States: []engine.State{
			{"day": 0, "turns": 1},
		},
	})
	require.NoError(t, err)
	defer resumed.Close(context.Background())

	// Only the two unreplayed entries hit the engine.
	assert.Len(t, partial.processedEntries(), 2)

	for id := 0; id < 3; id++ {
		want, err := fromScratch.StateByID(id)
		require.NoError(t, err)
		got, err := resumed.StateByID(id)
		require.NoError(t, err)
		assert.Equal(t, want, got, "state %d", id)
	}
}

func TestNewRejectsExcessStates(t *testing.T) {
	_, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Book:    logbook.New(),
		States:  []engine.State{{"turns": 1}},
	})
	require.ErrorIs(t, err, ErrStateDesync)
}

func TestAddLogEntryAcceptsStartOfDay(t *testing.T) {
	eng := &fakeEngine{
		process: func(entry *logbook.Entry, prev engine.State) (engine.State, error) {
			return engine.State{"day": entry.Day}, nil
		},
	}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), map[string]any{"day": 1})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 0, res.Entry.ID)
	assert.Equal(t, 1, res.Entry.Day)
	assert.Equal(t, logbook.StartOfDayAction, res.Entry.Action())
	assert.False(t, res.Entry.Timestamp.IsZero())
	assert.Equal(t, 1, res.State["day"])
	assert.Equal(t, 0, i.Book().LastEntryID())
}

func TestAddLogEntryRejectionLeavesNothingBehind(t *testing.T) {
	eng := &fakeEngine{
		process: func(entry *logbook.Entry, prev engine.State) (engine.State, error) {
			if entry.Action() == "move" {
				return nil, &engine.RejectedActionError{Reason: "no action points"}
			}
			return engine.State{"day": entry.Day}, nil
		},
	}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	_, err = i.AddLogEntry(context.Background(), map[string]any{"day": 1})
	require.NoError(t, err)

	_, err = i.AddLogEntry(context.Background(), moveRaw(0))
	var rej *engine.RejectedActionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "no action points", rej.Reason)

	// The rejected entry is not in the log and produced no state, and the
	// interactor keeps serving submissions.
	assert.Equal(t, 0, i.Book().LastEntryID())
	assert.Equal(t, 1, i.StateCount())

	_, err = i.AddLogEntry(context.Background(), map[string]any{"day": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, i.Book().LastEntryID())
}

func TestAddLogEntryUnknownAction(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	_, err = i.AddLogEntry(context.Background(), map[string]any{
		"action": "teleport", "subject": "Corey",
	})
	require.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, 0, i.Book().Len())
	assert.Equal(t, 0, i.StateCount())
}

func TestSequentialSubmissionsKeepOrder(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	for seq := 0; seq < 5; seq++ {
		res, err := i.AddLogEntry(context.Background(), moveRaw(seq))
		require.NoError(t, err)
		assert.Equal(t, seq, res.Entry.ID)
	}

	for id := 0; id < 5; id++ {
		entry, err := i.Book().Entry(id)
		require.NoError(t, err)
		got, _ := entry.Field("seq")
		assert.Equal(t, id, got)
	}
}

func TestConcurrentSubmissionsNeverOverlapEngineCalls(t *testing.T) {
	eng := &fakeEngine{delay: time.Millisecond}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for g := 0; g < n; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			_, errs[g] = i.AddLogEntry(context.Background(), moveRaw(g))
		}(g)
	}
	wg.Wait()

	for g, err := range errs {
		require.NoError(t, err, "submission %d", g)
	}
	assert.False(t, eng.overlap.Load(), "engine saw concurrent calls")
	assert.Equal(t, n, i.Book().Len())
	assert.Equal(t, n, i.StateCount())

	// Every submission landed exactly once, in some total order.
	seen := make(map[int]bool, n)
	for _, entry := range i.Book().Entries() {
		seq, _ := entry.Field("seq")
		seen[seq.(int)] = true
	}
	assert.Len(t, seen, n)
}

// failStore always fails; failPublisher records what it was offered.
type failStore struct{ calls int32 }

func (s *failStore) SaveGame(ctx context.Context, gameID uuid.UUID, initial engine.State, book *logbook.Book) error {
	atomic.AddInt32(&s.calls, 1)
	return errors.New("disk on fire")
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []cache.ActionRecord
}

func (p *recordingPublisher) PublishActionRecord(ctx context.Context, rec cache.ActionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
	return nil
}

func TestPersistFailureSurfacedNotRolledBack(t *testing.T) {
	store := &failStore{}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
		Store:   store,
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), moveRaw(0))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Error(t, res.PersistErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.calls))
	// In-memory state advanced despite the failed save.
	assert.Equal(t, 0, i.Book().LastEntryID())
	assert.Equal(t, 1, i.StateCount())
}

func TestAcceptedEntriesArePublished(t *testing.T) {
	pub := &recordingPublisher{}
	i, err := New(context.Background(), Options{
		Log:       quietLogger(),
		Engine:    &fakeEngine{},
		Ruleset:   testRuleset(),
		Initial:   engine.State{"day": 0},
		Publisher: pub,
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	_, err = i.AddLogEntry(context.Background(), moveRaw(7))
	require.NoError(t, err)

	// Publishing is asynchronous.
	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.recs) == 1
	}, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	rec := pub.recs[0]
	pub.mu.Unlock()
	assert.Equal(t, i.ID(), rec.GameID)
	assert.Equal(t, 0, rec.ActionIndex)
	assert.Equal(t, "move", rec.ActionType)
}

// diceSource offers a shoot-like action with three hit dice.
type diceSource struct{ die *dice.Die }

func (s diceSource) ActionsForPlayer(ctx context.Context, q source.Query) ([]action.PossibleAction, error) {
	if q.PlayerName == "" {
		return nil, nil
	}
	subject, err := action.NewFieldSpec("subject", action.FieldInput, nil)
	if err != nil {
		return nil, err
	}
	a := action.NewGenericAction("volley",
		action.NewSetValueSpec("action", "volley"),
		subject,
		action.NewDiceFieldSpec("hit_roll", dice.NewDice(3, s.die)),
	)
	return []action.PossibleAction{a}, nil
}

type countingRoller struct{ calls int32 }

func (r *countingRoller) Intn(n int) int {
	atomic.AddInt32(&r.calls, 1)
	return 0
}

func TestAutoRollsResolvedOnceAtSubmission(t *testing.T) {
	die := dice.NewDie("hit die", "hit dice", []dice.Side{
		{Value: "hit", Display: "hit"},
		{Value: "miss", Display: "miss"},
	})
	roller := &countingRoller{}
	eng := &fakeEngine{}

	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(diceSource{die: die}),
		Initial: engine.State{"day": 0},
		Roller:  roller,
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), map[string]any{
		"action":   "volley",
		"subject":  "Corey",
		"hit_roll": map[string]any{"type": "die-roll", "roll": []any{}},
	})
	require.NoError(t, err)

	// Exactly one roll per die, and the engine saw the resolved values.
	assert.Equal(t, int32(3), atomic.LoadInt32(&roller.calls))
	v, ok := res.Entry.Field("hit_roll")
	require.True(t, ok)
	roll, ok := logbook.RollFromField(v)
	require.True(t, ok)
	assert.Equal(t, []any{"hit", "hit", "hit"}, roll.Values)
	assert.False(t, roll.Manual)
	assert.Equal(t, map[string][]string{"hit_roll": {"hit", "hit", "hit"}}, res.Entry.DieRolls)

	processed := eng.processedEntries()
	require.Len(t, processed, 1)
	got, _ := processed[0].Field("hit_roll")
	engineRoll, ok := logbook.RollFromField(got)
	require.True(t, ok)
	assert.True(t, engineRoll.Resolved())
}

func TestManualRollsAreNotReRolled(t *testing.T) {
	die := dice.NewDie("hit die", "hit dice", []dice.Side{
		{Value: "hit", Display: "hit"},
		{Value: "miss", Display: "miss"},
	})
	roller := &countingRoller{}

	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(diceSource{die: die}),
		Initial: engine.State{"day": 0},
		Roller:  roller,
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), map[string]any{
		"action":  "volley",
		"subject": "Corey",
		"hit_roll": map[string]any{
			"type": "die-roll", "manual": true,
			"roll": []any{"miss", "hit", "miss"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int32(0), atomic.LoadInt32(&roller.calls))
	v, _ := res.Entry.Field("hit_roll")
	roll, ok := logbook.RollFromField(v)
	require.True(t, ok)
	assert.Equal(t, []any{"miss", "hit", "miss"}, roll.Values)
}

func TestPossibleActionsUsesLatestState(t *testing.T) {
	eng := &fakeEngine{}
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	// Subjectless query yields the day action for day 1.
	catalog, err := i.PossibleActions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, logbook.StartOfDayAction, catalog[0].ActionName())

	catalog, err = i.PossibleActions(context.Background(), "Corey")
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, "move", catalog[0].ActionName())
}

func TestBookAccessorReturnsSnapshot(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	_, err = i.AddLogEntry(context.Background(), moveRaw(0))
	require.NoError(t, err)
	snap := i.Book()

	// Readers of an earlier snapshot never see later appends, and reading
	// a snapshot while submissions run is safe.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for j := 0; j < 200; j++ {
			b := i.Book()
			if b.Len() > 0 {
				if _, err := b.Entry(b.LastEntryID()); err != nil {
					t.Errorf("Entry(%d): %v", b.LastEntryID(), err)
					return
				}
			}
		}
	}()
	for seq := 1; seq <= 10; seq++ {
		_, err := i.AddLogEntry(context.Background(), moveRaw(seq))
		require.NoError(t, err)
	}
	<-done

	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 11, i.Book().Len())
}

func TestStateByIDReturnsCopy(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), moveRaw(0))
	require.NoError(t, err)

	s, err := i.StateByID(0)
	require.NoError(t, err)
	s["turns"] = 99
	res.State["turns"] = 99

	again, err := i.StateByID(0)
	require.NoError(t, err)
	assert.Equal(t, 1, again["turns"])
}

func TestDieRollLabelsUseDisplayForms(t *testing.T) {
	die := dice.NewDie("damage die", "damage dice", []dice.Side{
		{Value: 1, Display: "one"},
		{Value: 2, Display: "two"},
	})
	roller := &countingRoller{}

	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(diceSource{die: die}),
		Initial: engine.State{"day": 0},
		Roller:  roller,
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	res, err := i.AddLogEntry(context.Background(), map[string]any{
		"action":   "volley",
		"subject":  "Corey",
		"hit_roll": map[string]any{"type": "die-roll", "roll": []any{}},
	})
	require.NoError(t, err)

	// Cached labels come from the die faces, not the raw stored values.
	assert.Equal(t, map[string][]string{"hit_roll": {"one", "one", "one"}}, res.Entry.DieRolls)
	v, _ := res.Entry.Field("hit_roll")
	roll, ok := logbook.RollFromField(v)
	require.True(t, ok)
	assert.Equal(t, []any{1, 1, 1}, roll.Values)
}

func TestStateByIDBounds(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	defer i.Close(context.Background())

	_, err = i.StateByID(0)
	require.ErrorIs(t, err, logbook.ErrOutOfRange)
	_, err = i.StateByID(-1)
	require.ErrorIs(t, err, logbook.ErrOutOfRange)
}

func TestCloseStopsNewWork(t *testing.T) {
	i, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  &fakeEngine{},
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
	})
	require.NoError(t, err)
	require.NoError(t, i.Close(context.Background()))

	_, err = i.AddLogEntry(context.Background(), moveRaw(0))
	require.ErrorIs(t, err, ErrClosed)
}

func TestReplayFailureSurfacesFromNew(t *testing.T) {
	eng := &fakeEngine{
		process: func(entry *logbook.Entry, prev engine.State) (engine.State, error) {
			return nil, fmt.Errorf("%w: process crashed", engine.ErrEngineUnavailable)
		},
	}
	_, err := New(context.Background(), Options{
		Log:     quietLogger(),
		Engine:  eng,
		Ruleset: testRuleset(),
		Initial: engine.State{"day": 0},
		Book:    seedBook(t, 0),
	})
	require.ErrorIs(t, err, engine.ErrEngineUnavailable)
}
