// Command client 无界面客户端：连接房间、镜像权威状态，可选地用简单机器人产生输入
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/rand"

	"minisync/client"
	"minisync/codec"
	"minisync/game"
	"minisync/link"
	"minisync/sim"
)

func main() {
	var (
		server   = flag.String("url", "ws://localhost:8080/ws", "server websocket endpoint")
		room     = flag.String("room", "", "room to join (server default when empty)")
		mode     = flag.String("game", "", "game mode when the room is created: missiles, pong or path")
		player   = flag.String("player", "", "player uuid, reuse it to reconnect as the same player")
		country  = flag.String("country", "", "preferred country in missiles rooms")
		bot      = flag.Bool("bot", false, "generate inputs automatically")
		duration = flag.Duration("duration", 0, "exit after this long (0 runs until interrupted)")
		level    = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	log, err := newLogger(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	q := url.Values{}
	for k, v := range map[string]string{"room": *room, "game": *mode, "player": *player, "country": *country} {
		if v != "" {
			q.Set(k, v)
		}
	}
	target := *server
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	ch := link.Dial(ctx, target,
		link.WithLogger(log.Named("link")),
		link.WithStateHook(func(s link.State) { log.Infow("link state", "state", s) }),
	)
	defer ch.Close()

	// 默认规则只用到收到 welcome 为止
	loop := &client.Loop{
		Link:       ch,
		Reconciler: client.NewReconciler(sim.New(sim.DefaultRules()), log.Named("reconciler")),
		Surface:    &logSurface{log: log.Named("frame"), every: 250},
		Log:        log,
	}
	if *bot {
		loop.Controller = newBot(uint64(time.Now().UnixNano()))
	}

	err = loop.Run(ctx)
	applied, stale, invalid := loop.Reconciler.Counts()
	st := ch.Stats()
	log.Infow("client stopped",
		"ticks", loop.Ticks(), "lastSeq", loop.Reconciler.LastSeq(),
		"applied", applied, "stale", stale, "invalid", invalid,
		"received", st.Received, "decodeErrors", st.DecodeErrors, "reconnects", st.Reconnects)
	if err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

// logSurface 不绘制，只统计每帧的图元并定期输出
type logSurface struct {
	log   *zap.SugaredLogger
	every int

	frames                      int
	circles, rects, texts, imgs int
	lastText                    string
}

func (s *logSurface) Clear(width, height float64) {
	if s.frames > 0 && s.frames%s.every == 0 {
		s.log.Infow("frame", "n", s.frames, "circles", s.circles, "rects", s.rects, "texts", s.texts, "images", s.imgs, "feed", s.lastText)
	}
	s.frames++
	s.circles, s.rects, s.texts, s.imgs = 0, 0, 0, 0
}

func (s *logSurface) Circle(game.Vec2, float64, string)        { s.circles++ }
func (s *logSurface) Rect(game.Vec2, float64, float64, string) { s.rects++ }
func (s *logSurface) Image(string, game.Vec2, float64, float64) {
	s.imgs++
}
func (s *logSurface) Text(_ game.Vec2, text, _ string) {
	s.texts++
	s.lastText = text
}

// newBot 按当前模式产生输入：球拍跟球、随机路点、定期发射
func newBot(seed uint64) client.Controller {
	rng := rand.New(rand.NewSource(seed))
	return func(tick uint64, r *client.Reconciler) []codec.Message {
		st, ok := r.Mirror()
		if !ok {
			return nil
		}
		switch {
		case st.Match != nil:
			m := st.Match
			y := m.Ball.Position.Y - m.UserPaddle.Height/2
			y = max(0, min(y, m.Canvas.Height-m.UserPaddle.Height))
			in, err := r.MoveLocalPaddle(y)
			if err != nil {
				return nil
			}
			return []codec.Message{in}

		case st.Tracer != nil && tick%50 == 0:
			p := game.Vec2{X: rng.Float64() * 800, Y: rng.Float64() * 400}
			in, err := r.AddWaypoint(p)
			if err != nil {
				return nil
			}
			return []codec.Message{in}

		case st.Mode == game.ModeMissiles && tick%250 == 0:
			return launch(rng, r, st)
		}
		return nil
	}
}

func launch(rng *rand.Rand, r *client.Reconciler, st game.GameState) []codec.Message {
	own, ok := st.Countries[r.Identity().Country]
	if !ok {
		return nil
	}
	battery := -1
	for i, b := range own.MissileBatteries {
		if b.MissileCount > 0 {
			battery = i
			break
		}
	}
	if battery < 0 {
		return nil
	}
	var targets []game.City
	var owners []string
	for _, name := range game.CountryNames(st.Countries) {
		if name == own.Name {
			continue
		}
		for _, c := range st.Countries[name].Cities {
			targets = append(targets, c)
			owners = append(owners, name)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	i := rng.Intn(len(targets))
	return []codec.Message{r.Launch(battery, owners[i], targets[i].Name)}
}
