package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/command"
	"github.com/tkmsd/groovebox/internal/app/notification"
	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/app/surface"
	"github.com/tkmsd/groovebox/internal/domain/track"
	"github.com/tkmsd/groovebox/internal/infra/config"
	"github.com/tkmsd/groovebox/internal/infra/source"
)

var (
	ErrNoResolver = errors.New("no track source configured")
)

// LinkFactory constructs the playback link backend for a space.
type LinkFactory func(spaceID string) (playback.Link, error)

// defaultCooldowns holds the per-action rates in seconds. Config entries
// override them.
var defaultCooldowns = map[string]int{
	"connect":      2,
	"disconnect":   2,
	"play":         1,
	"search":       3,
	"pause":        2,
	"resume":       2,
	"skip":         2,
	"stop":         2,
	"repeat":       2,
	"queue-loop":   2,
	"queue":        3,
	"queue-clear":  3,
	"queue-move":   3,
	"queue-remove": 3,
	"shuffle":      2,
	"volume":       2,
	"seek":         2,
	"now-playing":  3,
}

// Manager wires the per-space sessions to the shared dispatch table, the
// notification hub and the track source.
type Manager struct {
	cfg      *config.Config
	registry *Registry
	dispatch *command.Registry
	notifier *notification.Manager
	resolver source.Resolver
}

// NewManager builds the session manager and registers the full operation
// set. resolver may be nil when no track source is configured; play and
// search then report that.
func NewManager(cfg *config.Config, notifier *notification.Manager, resolver source.Resolver, links LinkFactory) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if notifier == nil {
		return nil, errors.New("notification manager is required")
	}
	if links == nil {
		return nil, errors.New("link factory is required")
	}

	m := &Manager{
		cfg:      cfg,
		dispatch: command.NewRegistry(),
		notifier: notifier,
		resolver: resolver,
	}
	m.registry = NewRegistry(func(spaceID string) (*Session, error) {
		link, err := links(spaceID)
		if err != nil {
			return nil, errors.Wrap(err, "create link")
		}
		controller := playback.NewController(spaceID, link, notifier)
		controller.SetStatusFormat(cfg.Messages.NowPlaying)
		if cfg.Playback.DefaultVolume != playback.DefaultVolume {
			if _, err := controller.SetVolume(cfg.Playback.DefaultVolume); err != nil {
				zlog.Debug().Msgf("initial volume not applied to link: space=%v err=%v", spaceID, err)
			}
		}
		return &Session{
			SpaceID:    spaceID,
			Controller: controller,
			Surface:    surface.New(spaceID, controller, m.dispatch, notifier),
			Link:       link,
		}, nil
	})

	if err := m.registerOperations(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dispatch returns the shared operation table.
func (m *Manager) Dispatch() *command.Registry {
	return m.dispatch
}

// Registry returns the space session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Messages returns the configured user-facing message set.
func (m *Manager) Messages() config.MessagesConfig {
	return m.cfg.Messages
}

// Invoke runs a named operation for an actor in a space.
func (m *Manager) Invoke(ctx context.Context, name string, actor command.Actor, spaceID string, args map[string]any) (string, error) {
	return m.dispatch.Invoke(ctx, name, actor, spaceID, args)
}

// Press routes a control surface button press.
func (m *Manager) Press(ctx context.Context, spaceID, glyph string, actor command.Actor) error {
	sess, ok := m.registry.Get(spaceID)
	if !ok {
		return errors.Wrapf(surface.ErrInactive, "space=%v", spaceID)
	}
	return sess.Surface.Trigger(ctx, glyph, actor)
}

// Status returns the playback status of a space, if it has a session.
func (m *Manager) Status(spaceID string) (playback.Status, bool) {
	sess, ok := m.registry.Get(spaceID)
	if !ok {
		return playback.Status{}, false
	}
	return sess.Controller.GetStatus(), true
}

// QueueSnapshot returns a copy of a space's pending tracks.
func (m *Manager) QueueSnapshot(spaceID string) ([]track.Track, bool) {
	sess, ok := m.registry.Get(spaceID)
	if !ok {
		return nil, false
	}
	return sess.Controller.Queue().Snapshot(), true
}

// Shutdown tears down every session and closes the notification hub.
func (m *Manager) Shutdown() {
	m.registry.ClearAll()
	m.notifier.Close()
}

func (m *Manager) cooldown(action string) time.Duration {
	return time.Duration(m.cfg.CooldownSeconds(action, defaultCooldowns[action])) * time.Second
}

func (m *Manager) register(op command.Operation) error {
	op.Cooldown = m.cooldown(op.Name)
	return m.dispatch.Register(op)
}

func (m *Manager) registerOperations() error {
	ops := []command.Operation{
		{Name: "connect", Aliases: []string{"join"}, Run: m.opConnect},
		{Name: "disconnect", Aliases: []string{"leave"}, Run: m.opDisconnect},
		{Name: "play", Aliases: []string{"p"}, Run: m.opPlay},
		{Name: "search", Run: m.opSearch},
		{Name: "pause", Run: m.opPause},
		{Name: "resume", Run: m.opResume},
		{Name: "skip", Aliases: []string{"next"}, Run: m.opSkip},
		{Name: "stop", Run: m.opStop},
		{Name: "repeat", Aliases: []string{"loop"}, Run: m.opRepeat},
		{Name: "queue-loop", Aliases: []string{"qloop"}, Run: m.opQueueLoop},
		{Name: "queue", Aliases: []string{"q"}, Run: m.opQueueList},
		{Name: "queue-clear", Aliases: []string{"clear"}, Run: m.opQueueClear},
		{Name: "queue-move", Aliases: []string{"move"}, Run: m.opQueueMove},
		{Name: "queue-remove", Aliases: []string{"remove"}, Run: m.opQueueRemove},
		{Name: "shuffle", Run: m.opShuffle},
		{Name: "volume", Aliases: []string{"vol"}, Run: m.opVolume},
		{Name: "seek", Run: m.opSeek},
		{Name: "now-playing", Aliases: []string{"np"}, Run: m.opNowPlaying},
	}
	for _, op := range ops {
		if err := m.register(op); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) session(spaceID string) (*Session, error) {
	return m.registry.GetOrCreate(spaceID)
}

// requesterFor maps an invocation actor to a track requester. Calls with no
// actor identity are attributed to the system.
func requesterFor(a command.Actor) track.Requester {
	kind := a.Kind
	if kind == "" {
		kind = track.RequesterKindUser
	}
	if a.ID == "" {
		kind = track.RequesterKindSystem
	}
	return track.Requester{ID: a.ID, Name: a.Name, Kind: kind}
}

func (m *Manager) opConnect(ctx context.Context, inv command.Invocation) (string, error) {
	var args struct {
		Channel string `mapstructure:"channel" validate:"required"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if err := sess.Controller.Connect(ctx, args.Channel); err != nil {
		return "", errors.Wrap(err, "connect")
	}
	return m.cfg.Messages.Connected, nil
}

func (m *Manager) opDisconnect(_ context.Context, inv command.Invocation) (string, error) {
	m.registry.Remove(inv.SpaceID)
	return m.cfg.Messages.Disconnected, nil
}

func (m *Manager) opPlay(ctx context.Context, inv command.Invocation) (string, error) {
	if m.resolver == nil {
		return "", ErrNoResolver
	}

	var args struct {
		Query   string `mapstructure:"query" validate:"required"`
		Channel string `mapstructure:"channel"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}

	// Playback needs an attached link before anything is queued, or the
	// loop would dequeue every track straight into a failing backend.
	if !sess.Controller.IsConnected() {
		if args.Channel == "" {
			return "", errors.WithHint(playback.ErrNotConnected, m.cfg.Messages.NotConnected)
		}
		if err := sess.Controller.Connect(ctx, args.Channel); err != nil {
			return "", errors.Wrap(err, "connect")
		}
	}

	tracks, err := m.resolver.Resolve(ctx, args.Query)
	if err != nil {
		if errors.Is(err, source.ErrNoMatch) {
			return "", errors.WithHint(err, m.cfg.Messages.TrackNotFound)
		}
		return "", errors.Wrap(err, "resolve")
	}

	requester := requesterFor(inv.Actor)
	for i := range tracks {
		tracks[i].Requester = requester
		sess.Controller.Queue().Enqueue(tracks[i])
	}

	label := tracks[0].String()
	if len(tracks) > 1 {
		label = fmt.Sprintf("%d tracks", len(tracks))
	}
	return fmt.Sprintf(m.cfg.Messages.TracksEnqueued, "`"+label+"`"), nil
}

func (m *Manager) opSearch(ctx context.Context, inv command.Invocation) (string, error) {
	if m.resolver == nil {
		return "", ErrNoResolver
	}

	var args struct {
		Query string `mapstructure:"query" validate:"required"`
		Limit int    `mapstructure:"limit" validate:"gte=0,lte=50"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}
	if args.Limit == 0 {
		args.Limit = m.cfg.Playback.SearchLimit
	}

	hits, err := m.resolver.Search(ctx, args.Query, args.Limit)
	if err != nil {
		return "", errors.Wrap(err, "search")
	}
	if len(hits) == 0 {
		return m.cfg.Messages.TrackNotFound, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Results for** `%s`:\n", args.Query)
	for i, t := range hits {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.String())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (m *Manager) opPause(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	paused, err := sess.Controller.TogglePause()
	if err != nil {
		return "", err
	}
	if paused {
		return m.cfg.Messages.Paused, nil
	}
	return m.cfg.Messages.Resumed, nil
}

func (m *Manager) opResume(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if err := sess.Controller.Resume(); err != nil {
		return "", err
	}
	return m.cfg.Messages.Resumed, nil
}

func (m *Manager) opSkip(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if err := sess.Controller.Skip(); err != nil {
		return "", err
	}
	return m.cfg.Messages.Skipped, nil
}

func (m *Manager) opStop(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if err := sess.Controller.Stop(); err != nil {
		return "", err
	}
	return m.cfg.Messages.Stopped, nil
}

func (m *Manager) opRepeat(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	enabled, err := sess.Controller.ToggleSingleLoop()
	if err != nil {
		return "", err
	}
	if enabled {
		return fmt.Sprintf(m.cfg.Messages.FlagEnabled, "🔂"), nil
	}
	return fmt.Sprintf(m.cfg.Messages.FlagDisabled, "🔂"), nil
}

func (m *Manager) opQueueLoop(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if sess.Controller.ToggleQueueLoop() {
		return fmt.Sprintf(m.cfg.Messages.FlagEnabled, "🔁"), nil
	}
	return fmt.Sprintf(m.cfg.Messages.FlagDisabled, "🔁"), nil
}

func (m *Manager) opQueueList(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}

	items := sess.Controller.Queue().Snapshot()
	if len(items) == 0 {
		return m.cfg.Messages.QueueEmpty, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Queue** (%d):\n", len(items))
	for i, t := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.String())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (m *Manager) opQueueClear(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	sess.Controller.Queue().Drain()
	return m.cfg.Messages.QueueCleared, nil
}

func (m *Manager) opQueueMove(_ context.Context, inv command.Invocation) (string, error) {
	var args struct {
		From int `mapstructure:"from" validate:"required,gte=1"`
		To   int `mapstructure:"to" validate:"required,gte=1"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	moved, err := sess.Controller.Queue().MoveTo(args.From, args.To)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**Moved** `%s` **to position %d.**", moved.String(), args.To), nil
}

func (m *Manager) opQueueRemove(_ context.Context, inv command.Invocation) (string, error) {
	var args struct {
		Index int `mapstructure:"index" validate:"required,gte=1"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	removed, err := sess.Controller.Queue().RemoveAt(args.Index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**Removed** `%s` **from the queue.**", removed.String()), nil
}

func (m *Manager) opShuffle(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	if err := sess.Controller.Shuffle(); err != nil {
		return "", err
	}
	return m.cfg.Messages.Shuffled, nil
}

func (m *Manager) opVolume(_ context.Context, inv command.Invocation) (string, error) {
	var args struct {
		Level int `mapstructure:"level" validate:"gte=0,lte=200"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	level, err := sess.Controller.SetVolume(args.Level)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(m.cfg.Messages.VolumeSet, level), nil
}

func (m *Manager) opSeek(_ context.Context, inv command.Invocation) (string, error) {
	var args struct {
		Seconds int `mapstructure:"seconds" validate:"gte=0"`
	}
	if err := command.DecodeArgs(inv.Args, &args); err != nil {
		return "", err
	}

	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}
	offset := time.Duration(args.Seconds) * time.Second
	if err := sess.Controller.Seek(offset); err != nil {
		return "", err
	}
	return fmt.Sprintf(m.cfg.Messages.SeekDone, "`"+track.FormatDuration(offset)+"`"), nil
}

func (m *Manager) opNowPlaying(_ context.Context, inv command.Invocation) (string, error) {
	sess, err := m.session(inv.SpaceID)
	if err != nil {
		return "", err
	}

	st := sess.Controller.GetStatus()
	if st.Current == nil {
		return m.cfg.Messages.NothingPlaying, nil
	}

	var b strings.Builder
	b.WriteString("**Now Playing**\n")
	fmt.Fprintf(&b, "[%s](%s)\n", st.Current.Title, st.Current.URI)
	fmt.Fprintf(&b, "`%s`\n", surface.ProgressBar(st.Position, st.Current.Duration))
	fmt.Fprintf(&b, "`%s` / `%s`\n", track.FormatDuration(st.Position), track.FormatDuration(st.Current.Duration))
	fmt.Fprintf(&b, "**Requested by:** `%s`", st.Current.Requester.Name)
	return b.String(), nil
}
