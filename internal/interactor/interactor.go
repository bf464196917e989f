// Package interactor implements the turn-processing state machine: it owns
// one game's log book and derived states, replays unreplayed entries
// against the external engine, and serializes new submissions behind any
// in-flight work.
package interactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TankGameOrg/ui-sub000/internal/action"
	"github.com/TankGameOrg/ui-sub000/internal/cache"
	"github.com/TankGameOrg/ui-sub000/internal/dice"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/source"
	"github.com/TankGameOrg/ui-sub000/internal/storage"
	"github.com/TankGameOrg/ui-sub000/internal/version"
)

var (
	// ErrRangeInconsistency reports an impossible replay range. It means a
	// bug, not a bad submission: the derived-state count can never exceed
	// the log length.
	ErrRangeInconsistency = errors.New("interactor: replay range start after end")

	// ErrStateDesync reports that the derived-state count and log length
	// disagree at submission time, i.e. something mutated the book outside
	// the worker queue. Never silently recovered.
	ErrStateDesync = errors.New("interactor: derived states out of sync with log book")

	// ErrClosed is returned for operations after Close.
	ErrClosed = errors.New("interactor: closed")

	// ErrUnknownAction is returned when a submission names an action no
	// source currently offers for its subject.
	ErrUnknownAction = errors.New("interactor: action not in current catalog")
)

// taskQueueDepth bounds queued submissions. Senders block (in order) once
// the queue is full, which preserves FIFO handling.
const taskQueueDepth = 128

// Options configures one interactor. Engine and Ruleset are required;
// Store and Publisher are optional collaborators; Book, States and Roller
// default to empty/new.
type Options struct {
	Log       *logrus.Logger
	GameID    uuid.UUID
	Engine    engine.Engine
	Ruleset   *version.Ruleset
	Roller    dice.Roller
	Store     storage.Store
	Publisher cache.Publisher

	// Initial is the board state before entry 0.
	Initial engine.State
	// Book is the existing log, empty for a fresh game.
	Book *logbook.Book
	// States are already-derived states from a previous session; never
	// longer than the book.
	States []engine.State
}

// Result is the outcome of an accepted submission. PersistErr is set when
// the entry was accepted and recorded in memory but saving it failed; the
// caller may retry persistence, the in-memory model is already advanced.
type Result struct {
	Entry      *logbook.Entry
	State      engine.State
	PersistErr error
}

// Interactor is the single logical owner of one game's engine connection,
// log book, and derived states. All engine traffic goes through one worker
// goroutine, so no two engine calls are ever in flight concurrently and
// submissions are handled strictly in arrival order.
type Interactor struct {
	id      uuid.UUID
	log     *logrus.Entry
	eng     engine.Engine
	ruleset *version.Ruleset
	roller  dice.Roller
	store   storage.Store
	pub     cache.Publisher

	// mu guards book and states for the read accessors; the worker is the
	// only writer.
	mu      sync.RWMutex
	initial engine.State
	book    *logbook.Book
	states  []engine.State

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the worker and performs catch-up replay through it. A replay
// failure closes the interactor and is returned; the engine process is left
// to the caller.
func New(ctx context.Context, opts Options) (*Interactor, error) {
	if opts.Engine == nil {
		return nil, errors.New("interactor: engine is required")
	}
	if opts.Ruleset == nil {
		return nil, errors.New("interactor: ruleset is required")
	}
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	if opts.GameID == uuid.Nil {
		opts.GameID = uuid.New()
	}
	if opts.Book == nil {
		opts.Book = logbook.New()
	}
	if opts.Roller == nil {
		opts.Roller = dice.NewRoller()
	}
	if len(opts.States) > opts.Book.Len() {
		return nil, fmt.Errorf("%w: %d derived states for %d entries",
			ErrStateDesync, len(opts.States), opts.Book.Len())
	}

	i := &Interactor{
		id:      opts.GameID,
		log:     log.WithField("game", opts.GameID),
		eng:     opts.Engine,
		ruleset: opts.Ruleset,
		roller:  opts.Roller,
		store:   opts.Store,
		pub:     opts.Publisher,
		initial: opts.Initial,
		book:    opts.Book,
		states:  append([]engine.State(nil), opts.States...),
		tasks:   make(chan func(), taskQueueDepth),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go i.loop()

	// Catch-up runs through the queue, so any submission racing in behind
	// construction waits for it automatically.
	if err := i.run(ctx, func() error { return i.catchUp(ctx) }); err != nil {
		_ = i.Close(ctx)
		return nil, err
	}
	return i, nil
}

// ID returns the game id.
func (i *Interactor) ID() uuid.UUID { return i.id }

// loop is the worker: it executes queued tasks one at a time until Close,
// then drains what was already queued so no submitter is left hanging.
func (i *Interactor) loop() {
	defer close(i.done)
	for {
		select {
		case t := <-i.tasks:
			t()
		case <-i.quit:
			for {
				select {
				case t := <-i.tasks:
					t()
				default:
					return
				}
			}
		}
	}
}

// run enqueues fn and waits for it. Errors from fn pass through verbatim.
func (i *Interactor) run(ctx context.Context, fn func() error) error {
	select {
	case <-i.quit:
		return ErrClosed
	default:
	}

	result := make(chan error, 1)
	wrapped := func() { result <- fn() }

	select {
	case i.tasks <- wrapped:
	case <-i.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, the task normally runs even during shutdown because the
	// worker drains the queue before exiting. Abandoning the wait on ctx
	// would break the no-partial-mutation contract, so we wait for the
	// worker instead.
	select {
	case err := <-result:
		return err
	case <-i.done:
		// The worker exited. It drained everything queued before shutdown,
		// so either our result is already buffered or it never will be.
		select {
		case err := <-result:
			return err
		default:
			return ErrClosed
		}
	}
}

// catchUp replays any log entries that have no derived state yet. Worker
// context only.
func (i *Interactor) catchUp(ctx context.Context) error {
	start := len(i.states)
	end := i.book.Len() - 1
	if start > end {
		if start == end+1 {
			return nil // fully caught up
		}
		return fmt.Errorf("%w: [%d, %d]", ErrRangeInconsistency, start, end)
	}

	i.log.WithFields(logrus.Fields{"start": start, "end": end}).Info("replaying log entries")
	for idx := start; idx <= end; idx++ {
		entry, err := i.book.Entry(idx)
		if err != nil {
			return err
		}
		if err := i.eng.SetBoardState(ctx, i.stateBefore(idx)); err != nil {
			return err
		}
		state, err := i.eng.ProcessAction(ctx, entry)
		if err != nil {
			// Entries in the book were accepted once; a rejection on
			// replay means the engine or log is corrupt.
			return fmt.Errorf("replaying entry %d: %w", idx, err)
		}
		i.appendState(state)
	}
	return nil
}

// stateBefore returns the state an entry at idx applies to. Worker context
// only.
func (i *Interactor) stateBefore(idx int) engine.State {
	if idx == 0 {
		return i.initial
	}
	return i.states[idx-1]
}

// appendState records a derived state under the read lock.
func (i *Interactor) appendState(state engine.State) {
	i.mu.Lock()
	i.states = append(i.states, state)
	i.mu.Unlock()
}

// AddLogEntry submits one raw entry. The call queues behind any in-flight
// replay or submission and returns only after the engine accepted or
// rejected the entry. On rejection or failure nothing is mutated; the queue
// slot is released either way.
func (i *Interactor) AddLogEntry(ctx context.Context, raw map[string]any) (*Result, error) {
	var res *Result
	err := i.run(ctx, func() error {
		r, err := i.submit(ctx, raw)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// submit performs one submission. Worker context only.
func (i *Interactor) submit(ctx context.Context, raw map[string]any) (*Result, error) {
	if len(i.states) != i.book.Len() {
		err := fmt.Errorf("%w: %d states, %d entries", ErrStateDesync, len(i.states), i.book.Len())
		i.log.WithError(err).Error("invariant violation before submission")
		return nil, err
	}

	entry := i.book.MakeEntryFromRaw(raw)
	if entry.Day < i.book.MaxDay() {
		return nil, fmt.Errorf("%w: entry day %d before current day %d",
			logbook.ErrDayRegression, entry.Day, i.book.MaxDay())
	}

	prev := i.stateBefore(i.book.Len())
	if err := i.eng.SetBoardState(ctx, prev); err != nil {
		return nil, err
	}

	// Validate against the current catalog and resolve dice before the
	// entry reaches the engine.
	act, err := i.findAction(ctx, entry, prev)
	if err != nil {
		return nil, err
	}
	if err := act.ValidateEntry(entry); err != nil {
		return nil, err
	}
	if err := action.FinalizeEntry(entry, act, i.roller); err != nil {
		return nil, err
	}

	entry.Timestamp = time.Now().UTC()
	state, err := i.eng.ProcessAction(ctx, entry)
	if err != nil {
		// Rejected or unavailable: no partial mutation, slot released by
		// returning.
		return nil, err
	}

	if i.ruleset.Format != nil {
		entry.Message = i.ruleset.Format(entry, prev)
	}
	entry.DieRolls = expandDieRolls(entry, act)

	i.mu.Lock()
	id, addErr := i.book.AddEntry(entry)
	if addErr == nil {
		i.states = append(i.states, state)
	}
	i.mu.Unlock()
	if addErr != nil {
		return nil, addErr
	}

	// The stored state must stay independent of whatever the caller does
	// with the result.
	res := &Result{Entry: entry, State: state.Clone()}
	if i.store != nil {
		if err := i.store.SaveGame(ctx, i.id, i.initial, i.book); err != nil {
			// Best-effort: surfaced, never rolled back.
			i.log.WithError(err).WithField("entry", id).Warn("persisting accepted entry failed")
			res.PersistErr = err
		}
	}
	i.publish(entry)
	return res, nil
}

// findAction builds the catalog for the entry's subject against prev and
// picks the action the entry names. The engine working state is already set
// to prev.
func (i *Interactor) findAction(ctx context.Context, entry *logbook.Entry, prev engine.State) (action.PossibleAction, error) {
	subject, _ := entry.Field("subject")
	playerName, _ := subject.(string)

	catalog, err := i.ruleset.Sources.ActionsForPlayer(ctx, source.Query{
		PlayerName: playerName,
		State:      prev,
		Engine:     i.eng,
	})
	if err != nil {
		return nil, err
	}
	for _, a := range catalog {
		if a.ActionName() == entry.Action() {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q for subject %q", ErrUnknownAction, entry.Action(), playerName)
}

// publish sends the accepted entry to the historian queue, fire-and-forget.
func (i *Interactor) publish(entry *logbook.Entry) {
	if i.pub == nil {
		return
	}
	rec := cache.ActionRecord{
		GameID:      i.id,
		ActionIndex: entry.ID,
		Day:         entry.Day,
		ActionType:  entry.Action(),
		Fields:      entry.Fields,
		Timestamp:   entry.Timestamp.UnixMilli(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := i.pub.PublishActionRecord(ctx, rec); err != nil {
			i.log.WithError(err).WithField("entry", rec.ActionIndex).Warn("publishing action record failed")
		}
	}()
}

// expandDieRolls caches the display form of every resolved roll field,
// mapping raw side values through the action's dice specs so dice whose
// labels differ from their values render correctly.
func expandDieRolls(entry *logbook.Entry, act action.PossibleAction) map[string][]string {
	var out map[string][]string
	for _, s := range act.SpecsForEntry(entry) {
		ds, isDice := s.(*action.DiceFieldSpec)
		if !isDice {
			continue
		}
		v, ok := entry.Field(ds.Name)
		if !ok {
			continue
		}
		roll, isRoll := logbook.RollFromField(v)
		if !isRoll || !roll.Resolved() {
			continue
		}

		expanded := dice.ExpandPools(ds.Pools)
		labels := make([]string, len(roll.Values))
		for j, value := range roll.Values {
			if j < len(expanded) {
				if side, defined := expanded[j].SideByValue(value); defined {
					labels[j] = side.Display
					continue
				}
			}
			labels[j] = fmt.Sprintf("%v", value)
		}
		if out == nil {
			out = make(map[string][]string)
		}
		out[ds.Name] = labels
	}
	return out
}

// PossibleActions computes the current action catalog for a player (empty
// for the subjectless day actions) against the latest derived state. The
// call is serialized through the worker because it talks to the engine.
func (i *Interactor) PossibleActions(ctx context.Context, playerName string) ([]action.PossibleAction, error) {
	var catalog []action.PossibleAction
	err := i.run(ctx, func() error {
		if len(i.states) != i.book.Len() {
			return fmt.Errorf("%w: %d states, %d entries", ErrStateDesync, len(i.states), i.book.Len())
		}
		latest := i.stateBefore(i.book.Len())
		if err := i.eng.SetBoardState(ctx, latest); err != nil {
			return err
		}
		actions, err := i.ruleset.Sources.ActionsForPlayer(ctx, source.Query{
			PlayerName: playerName,
			State:      latest,
			Engine:     i.eng,
		})
		catalog = actions
		return err
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// StateByID returns a copy of the derived state for one entry id. Pure
// read; never triggers replay.
func (i *Interactor) StateByID(id int) (engine.State, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if id < 0 || id >= len(i.states) {
		return nil, fmt.Errorf("%w: state %d not in [0, %d)", logbook.ErrOutOfRange, id, len(i.states))
	}
	return i.states[id].Clone(), nil
}

// StateCount returns the number of derived states.
func (i *Interactor) StateCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.states)
}

// Book returns a point-in-time snapshot of the log book. The snapshot is
// safe to read while further submissions append to the live book.
func (i *Interactor) Book() *logbook.Book {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.book.Snapshot()
}

// Close stops the worker after draining queued work. It does not shut the
// engine down; the engine connection may be shared with a successor (e.g.
// a reload of the same game).
func (i *Interactor) Close(ctx context.Context) error {
	i.closeOnce.Do(func() { close(i.quit) })
	select {
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
