package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/lumberjack/internal/eventbus"
	"github.com/annel0/lumberjack/internal/game"
	"github.com/annel0/lumberjack/internal/logging"
	"github.com/annel0/lumberjack/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Authorizer решает, может ли claimed действовать от имени stored.
// session - необязательное делегированное право (может быть nil).
type Authorizer interface {
	Authorize(claimed, stored game.Identity, session *game.SessionCredential) bool
}

// ActionRequest - запрос действия над полем.
type ActionRequest struct {
	Player        game.Identity           // authority игрока, над чьей записью выполняется действие
	Signer        game.Identity           // кто подписал запрос
	Session       *game.SessionCredential // делегированная сессия, если подписывал ключ сессии
	X, Y          int
	Building      game.BuildingType // только для Build
	CorrelationID string
}

// ActionResult - итог успешного действия.
type ActionResult struct {
	Action       game.GameAction  `json:"action"`
	Player       game.PlayerState `json:"player"`
	Wood         uint64           `json:"wood"`
	Stone        uint64           `json:"stone"`
	WorldVersion uint64           `json:"world_version"`
}

// InitParams - параметры создания игрока.
type InitParams struct {
	Name          string
	Avatar        game.Identity
	CorrelationID string
}

// Processor проводит действие через проверки и атомарно записывает результат:
// Start → AuthCheck → EnergyRegen → EnergyGate → BoardTransition → Commit.
// Любой отказ завершает обработку без записи.
//
// Все изменяющие операции одного мира сериализуются мьютексом; кроме того,
// хранилище проверяет версию мира, так что несколько процессов над одним
// хранилищем не затирают друг друга.
type Processor struct {
	store   storage.Store
	clock   Clock
	auth    Authorizer
	bus     eventbus.EventBus
	metrics *Metrics
	logger  *logging.Logger
	tracer  trace.Tracer

	worldKey   string
	rules      game.Rules
	source     string
	maxRetries int

	mu sync.Mutex
}

// Option настраивает Processor.
type Option func(*Processor)

func WithEventBus(bus eventbus.EventBus) Option { return func(p *Processor) { p.bus = bus } }
func WithMetrics(m *Metrics) Option             { return func(p *Processor) { p.metrics = m } }
func WithLogger(l *logging.Logger) Option       { return func(p *Processor) { p.logger = l } }
func WithRules(r game.Rules) Option             { return func(p *Processor) { p.rules = r } }
func WithWorldKey(key string) Option            { return func(p *Processor) { p.worldKey = key } }
func WithSource(node string) Option             { return func(p *Processor) { p.source = node } }

// WithConflictRetries задаёт, сколько раз повторять действие при конфликте версий.
func WithConflictRetries(n int) Option { return func(p *Processor) { p.maxRetries = n } }

// New создаёт обработчик. Правила по умолчанию - game.StrictRules.
func New(store storage.Store, clock Clock, auth Authorizer, opts ...Option) *Processor {
	p := &Processor{
		store:      store,
		clock:      clock,
		auth:       auth,
		tracer:     otel.Tracer("github.com/annel0/lumberjack/internal/processor"),
		worldKey:   game.DefaultWorldKey,
		rules:      game.StrictRules,
		source:     "lumberjack",
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.GetGameLogger()
	}
	return p
}

// Rules возвращает активный набор правил.
func (p *Processor) Rules() game.Rules {
	return p.rules
}

// InitPlayer создаёт игрока с authority = signer, полной энергией и last_login = now.
// Мир создаётся при первом обращении. Повторный вызов - storage.ErrPlayerExists.
func (p *Processor) InitPlayer(ctx context.Context, signer game.Identity, params InitParams) (*game.PlayerState, error) {
	ctx, span := p.tracer.Start(ctx, "processor.InitPlayer",
		trace.WithAttributes(attribute.String("player", signer.String())))
	defer span.End()
	start := time.Now()

	player, err := p.initPlayer(ctx, signer, params)
	p.finish(span, "init", err, start)
	if err != nil {
		return nil, err
	}

	p.logger.Info("🧑‍🌾 Новый игрок %q (%s)", player.Name, player.Authority)
	p.publish(ctx, eventbus.EventPlayerInit, params.CorrelationID, eventbus.PlayerInitEvent{
		Authority: player.Authority,
		Avatar:    player.Avatar,
		Name:      player.Name,
	})
	return player, nil
}

func (p *Processor) initPlayer(ctx context.Context, signer game.Identity, params InitParams) (*game.PlayerState, error) {
	if _, err := p.store.LoadOrCreateWorld(ctx, p.worldKey); err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}

	player, err := game.NewPlayer(signer, params.Avatar, params.Name, p.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := p.store.CreatePlayer(ctx, player); err != nil {
		return nil, err
	}
	return player, nil
}

// Chop рубит дерево на (x, y).
func (p *Processor) Chop(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return p.act(ctx, game.Move{Type: game.ActionChop, X: req.X, Y: req.Y}, req)
}

// Build ставит req.Building на пустой тайл (x, y).
func (p *Processor) Build(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return p.act(ctx, game.Move{Type: game.ActionBuild, X: req.X, Y: req.Y, Building: req.Building}, req)
}

// Upgrade повышает уровень здания на (x, y).
func (p *Processor) Upgrade(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return p.act(ctx, game.Move{Type: game.ActionUpgrade, X: req.X, Y: req.Y}, req)
}

// Collect собирает ресурс со здания на (x, y).
func (p *Processor) Collect(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return p.act(ctx, game.Move{Type: game.ActionCollect, X: req.X, Y: req.Y}, req)
}

func (p *Processor) act(ctx context.Context, move game.Move, req ActionRequest) (*ActionResult, error) {
	ctx, span := p.tracer.Start(ctx, "processor."+move.Type.String(), trace.WithAttributes(
		attribute.String("player", req.Player.String()),
		attribute.Int("x", req.X),
		attribute.Int("y", req.Y),
	))
	defer span.End()
	start := time.Now()

	p.mu.Lock()
	var (
		res *ActionResult
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = p.actOnce(ctx, move, req)
		if !errors.Is(err, storage.ErrVersionConflict) || attempt >= p.maxRetries {
			break
		}
		p.metrics.conflict()
		p.logger.Warn("⚠️ Конфликт версии мира при %s, повтор %d", move, attempt+1)
	}
	p.mu.Unlock()

	p.finish(span, move.Type.String(), err, start)
	if err != nil {
		if game.IsRejection(err) {
			p.logger.Debug("✋ %s от %s отклонено: %v", move, req.Player, err)
		} else {
			p.logger.Error("❌ %s от %s: %v", move, req.Player, err)
		}
		return nil, err
	}

	p.logger.Debug("✅ %s от %s, action_id=%d", move, req.Player, res.Action.ActionID)
	p.publish(ctx, eventbus.ActionEventType(move.Type), req.CorrelationID, eventbus.ActionEvent{
		Action:       res.Action,
		WorldVersion: res.WorldVersion,
		Wood:         res.Wood,
		Stone:        res.Stone,
		EnergyLeft:   res.Player.Energy,
	})
	return res, nil
}

// actOnce выполняет одно действие целиком на копиях игрока и мира.
// Копии попадают в хранилище только через один Commit.
func (p *Processor) actOnce(ctx context.Context, move game.Move, req ActionRequest) (*ActionResult, error) {
	player, err := p.store.GetPlayer(ctx, req.Player)
	if err != nil {
		return nil, err
	}

	// AuthCheck
	if p.auth == nil || !p.auth.Authorize(req.Signer, player.Authority, req.Session) {
		return nil, game.ErrWrongAuthority
	}

	read := *player

	// EnergyRegen
	now := p.clock.Now()
	granted := game.RegenerateEnergy(player, now)

	// EnergyGate
	if player.Energy == 0 {
		return nil, game.ErrNotEnoughEnergy
	}

	// BoardTransition
	world, err := p.store.LoadOrCreateWorld(ctx, p.worldKey)
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	next := world.Clone()
	action, err := next.Apply(move, game.Actor{Player: player.Authority, Avatar: player.Avatar, Now: now}, p.rules)
	if err != nil {
		return nil, err
	}
	if err := player.SpendEnergy(); err != nil {
		return nil, err
	}
	next.Version = world.Version + 1

	// Commit
	err = p.store.Commit(ctx, storage.Commit{
		WorldKey:        p.worldKey,
		World:           next,
		ExpectedVersion: world.Version,
		Player:          player,
		ExpectedPlayer:  &read,
	})
	if err != nil {
		return nil, err
	}
	p.metrics.regenerated(granted)

	return &ActionResult{
		Action:       action,
		Player:       *player,
		Wood:         next.Board.Wood,
		Stone:        next.Board.Stone,
		WorldVersion: next.Version,
	}, nil
}

// Update только пересчитывает энергию игрока и сохраняет результат.
// Поле не затрагивается, проверка authority не нужна: результат зависит только от времени.
func (p *Processor) Update(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	ctx, span := p.tracer.Start(ctx, "processor.update",
		trace.WithAttributes(attribute.String("player", authority.String())))
	defer span.End()
	start := time.Now()

	p.mu.Lock()
	player, err := p.update(ctx, authority)
	p.mu.Unlock()

	p.finish(span, "update", err, start)
	return player, err
}

func (p *Processor) update(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	for attempt := 0; ; attempt++ {
		player, err := p.updateOnce(ctx, authority)
		if !errors.Is(err, storage.ErrVersionConflict) || attempt >= p.maxRetries {
			return player, err
		}
		p.metrics.conflict()
		p.logger.Warn("⚠️ Игрок %s изменён другим узлом во время update, повтор %d", authority, attempt+1)
	}
}

// updateOnce сохраняет пересчёт, только если запись игрока не изменилась после чтения.
func (p *Processor) updateOnce(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	player, err := p.store.GetPlayer(ctx, authority)
	if err != nil {
		return nil, err
	}

	read := *player
	granted := game.RegenerateEnergy(player, p.clock.Now())
	if *player == read {
		return player, nil
	}

	if err := p.store.Commit(ctx, storage.Commit{Player: player, ExpectedPlayer: &read}); err != nil {
		return nil, err
	}
	p.metrics.regenerated(granted)
	return player, nil
}

// Player возвращает сохранённое состояние игрока (без пересчёта энергии).
func (p *Processor) Player(ctx context.Context, authority game.Identity) (*game.PlayerState, error) {
	return p.store.GetPlayer(ctx, authority)
}

// World возвращает текущий мир (поле, журнал и версию).
func (p *Processor) World(ctx context.Context) (*game.World, error) {
	return p.store.LoadOrCreateWorld(ctx, p.worldKey)
}

// Board возвращает текущее поле.
func (p *Processor) Board(ctx context.Context) (*game.Board, error) {
	w, err := p.World(ctx)
	if err != nil {
		return nil, err
	}
	return &w.Board, nil
}

// History возвращает последние действия, от старых к новым.
func (p *Processor) History(ctx context.Context) ([]game.GameAction, error) {
	w, err := p.World(ctx)
	if err != nil {
		return nil, err
	}
	return w.History.Recent(), nil
}

// Snapshot возвращает мир в фиксированной бинарной раскладке.
func (p *Processor) Snapshot(ctx context.Context) ([]byte, error) {
	w, err := p.World(ctx)
	if err != nil {
		return nil, err
	}
	return w.MarshalBinary()
}

func (p *Processor) finish(span trace.Span, action string, err error, start time.Time) {
	p.metrics.observe(action, err, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("result", resultLabel(err)))
	if err != nil && !game.IsRejection(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// publish отправляет событие в шину. Ошибка шины не отменяет уже записанное действие.
func (p *Processor) publish(ctx context.Context, eventType, correlationID string, payload any) {
	if p.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventType, p.source, payload)
	if err != nil {
		p.logger.Error("Не удалось сформировать событие %s: %v", eventType, err)
		return
	}
	ev.CorrelationID = correlationID
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("Не удалось опубликовать событие %s: %v", eventType, err)
	}
}
