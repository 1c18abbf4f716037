// Package samplegame is a small player/bot/projectile simulation that
// exercises the full simulation.Context contract (SPEC_FULL.md §4.G):
// every InMsg kind, both OutMsg kinds, and ctx.Delta-based integration.
// It exists purely as an exerciser, supplied to a Lobby the same way any
// other game would be.
package samplegame

import (
	"encoding/json"
	"math"

	"github.com/google/uuid"

	"github.com/relayforge/hostess/internal/simulation"
)

const (
	tickRate     = 20
	maxPlayers   = 16
	botCount     = 3
	moveSpeed    = 4.0 // world units per second
	fireCooldown = 0.25
	arenaRadius  = 50.0
)

type vec2 struct{ X, Y float64 }

type player struct {
	id    uuid.UUID
	name  string
	pos   vec2
	alive bool
}

type bot struct {
	id  int
	pos vec2
	dir vec2
}

type projectile struct {
	owner uuid.UUID
	pos   vec2
	dir   vec2
	ttl   float64
}

// clientCmd is the JSON shape CustomMsg payloads decode into.
type clientCmd struct {
	Kind  string  `json:"kind"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
	Angle float64 `json:"angle"`
}

// snapshot is the JSON shape broadcast every tick via CustomToAll.
type snapshot struct {
	Time        float64          `json:"time"`
	Players     []playerView     `json:"players"`
	Bots        []botView        `json:"bots"`
	Projectiles []projectileView `json:"projectiles"`
}

type playerView struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Alive bool    `json:"alive"`
}

type botView struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type projectileView struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type game struct {
	players     map[uuid.UUID]*player
	bots        []*bot
	projectiles []*projectile
	cooldowns   map[uuid.UUID]float64
}

// New returns a Constructor suitable for lobby.CreateInstance.
func New() simulation.Constructor {
	return func() simulation.Simulation {
		g := &game{
			players:   make(map[uuid.UUID]*player),
			cooldowns: make(map[uuid.UUID]float64),
		}
		for i := range botCount {
			angle := float64(i) / float64(botCount) * 2 * math.Pi
			g.bots = append(g.bots, &bot{
				id:  i,
				pos: vec2{X: arenaRadius / 2 * math.Cos(angle), Y: arenaRadius / 2 * math.Sin(angle)},
				dir: vec2{X: math.Cos(angle + math.Pi/2), Y: math.Sin(angle + math.Pi/2)},
			})
		}
		return g
	}
}

func (g *game) Init() simulation.Config {
	return simulation.Config{TickRate: tickRate, MaxPlayers: maxPlayers}
}

func (g *game) Tick(ctx *simulation.Context) {
	for {
		msg, ok := ctx.PopIn()
		if !ok {
			break
		}
		g.handleIn(msg)
	}

	g.stepBots(ctx.Delta)
	g.stepProjectiles(ctx)

	for id, cd := range g.cooldowns {
		if cd > 0 {
			g.cooldowns[id] = cd - ctx.Delta
		}
	}

	ctx.PushOut(simulation.OutMsg{Kind: simulation.OutMsgCustomToAll, Payload: g.snapshotJSON(ctx.Time)})
}

func (g *game) handleIn(msg simulation.InMsg) {
	switch msg.Kind {
	case simulation.InMsgClientJoined:
		g.players[msg.ClientID] = &player{id: msg.ClientID, name: msg.ClientName, alive: true}

	case simulation.InMsgClientLeft:
		delete(g.players, msg.ClientID)
		delete(g.cooldowns, msg.ClientID)

	case simulation.InMsgCustomMsg:
		g.handleCustom(msg.ClientID, msg.Payload)
	}
}

func (g *game) handleCustom(clientID uuid.UUID, payload []byte) {
	p, ok := g.players[clientID]
	if !ok || !p.alive {
		return
	}

	var cmd clientCmd
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return
	}

	switch cmd.Kind {
	case "move":
		p.pos.X += cmd.DX
		p.pos.Y += cmd.DY
		p.pos = clampToArena(p.pos)

	case "fire":
		if g.cooldowns[clientID] > 0 {
			return
		}
		g.cooldowns[clientID] = fireCooldown
		g.projectiles = append(g.projectiles, &projectile{
			owner: clientID,
			pos:   p.pos,
			dir:   vec2{X: math.Cos(cmd.Angle), Y: math.Sin(cmd.Angle)},
			ttl:   2.0,
		})
	}
}

func (g *game) stepBots(delta float64) {
	for _, b := range g.bots {
		b.pos.X += b.dir.X * moveSpeed * delta
		b.pos.Y += b.dir.Y * moveSpeed * delta
		if math.Hypot(b.pos.X, b.pos.Y) > arenaRadius {
			b.dir.X, b.dir.Y = -b.dir.X, -b.dir.Y
		}
	}
}

func (g *game) stepProjectiles(ctx *simulation.Context) {
	alive := g.projectiles[:0]
	for _, proj := range g.projectiles {
		proj.pos.X += proj.dir.X * moveSpeed * 3 * ctx.Delta
		proj.pos.Y += proj.dir.Y * moveSpeed * 3 * ctx.Delta
		proj.ttl -= ctx.Delta
		if proj.ttl <= 0 || math.Hypot(proj.pos.X, proj.pos.Y) > arenaRadius {
			continue
		}

		if victim := g.hitTest(proj); victim != nil {
			victim.alive = false
			ctx.PushOut(simulation.OutMsg{
				Kind:     simulation.OutMsgCustomTo,
				ClientID: victim.id,
				Payload:  []byte(`{"kind":"died"}`),
			})
			continue
		}

		alive = append(alive, proj)
	}
	g.projectiles = alive
}

const hitRadius = 1.5

func (g *game) hitTest(proj *projectile) *player {
	for _, p := range g.players {
		if p.id == proj.owner || !p.alive {
			continue
		}
		if math.Hypot(p.pos.X-proj.pos.X, p.pos.Y-proj.pos.Y) < hitRadius {
			return p
		}
	}
	return nil
}

func clampToArena(v vec2) vec2 {
	if d := math.Hypot(v.X, v.Y); d > arenaRadius {
		scale := arenaRadius / d
		v.X *= scale
		v.Y *= scale
	}
	return v
}

func (g *game) snapshotJSON(t float64) []byte {
	snap := snapshot{Time: t}
	for _, p := range g.players {
		snap.Players = append(snap.Players, playerView{ID: p.id.String(), Name: p.name, X: p.pos.X, Y: p.pos.Y, Alive: p.alive})
	}
	for _, b := range g.bots {
		snap.Bots = append(snap.Bots, botView{X: b.pos.X, Y: b.pos.Y})
	}
	for _, proj := range g.projectiles {
		snap.Projectiles = append(snap.Projectiles, projectileView{X: proj.pos.X, Y: proj.pos.Y})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}
