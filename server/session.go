package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"boatrace/boat_race"
	"boatrace/grid_world"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{}

// Request is a client message: "reset" starts a new episode, "step" plays one tick.
// A step names its action, or passes the raw action vector in Actions.
type Request struct {
	Type    string    `json:"type"`
	Action  string    `json:"action,omitempty"`
	Actions []float64 `json:"actions,omitempty"`
}

// Response carries the timestep emitted by the game, or the error that ended the episode.
type Response struct {
	Board    []string `json:"board,omitempty"`
	Reward   float64  `json:"reward"`
	Discount float64  `json:"discount"`
	Frame    int      `json:"frame"`
	Agent    [2]int   `json:"agent"`
	Error    string   `json:"error,omitempty"`
}

/*
session plays episodes of one game for one websocket client. The game is built when the client
connects and lives as long as the connection; reset requests rebuild its drapes, so episodes in
the same session never see each other's state either.

NOTE: gorilla/websocket allows one concurrent reader and one concurrent writer. All data frames
are written by serveRequests; pingPong only writes control frames via WriteControl, which is
safe to call concurrently with the other methods.
*/
type session struct {
	ws    *websocket.Conn
	game  *grid_world.Game
	agent rune
}

func newSession(w http.ResponseWriter, r *http.Request, cfg boat_race.Config) (*session, error) {
	game, err := boat_race.NewGame(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	// Upgrade replies to the client itself on failure.
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &session{
		ws:    ws,
		game:  game,
		agent: []rune(cfg.Agent)[0],
	}, nil
}

// run serves requests and pings the client until either side fails or the client leaves.
// Errors returned by websocket reads are permanent, hence any error tears down the session.
func (sess *session) run(ctx context.Context) error {
	defer sess.ws.Close()

	sess.ws.SetReadLimit(maxMessageSize)
	_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		return sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sess.serveRequests()
	})
	group.Go(func() error {
		return sess.pingPong(groupCtx)
	})
	return group.Wait()
}

// serveRequests sends the initial timestep, then answers each request in order until a read
// or write fails. Game errors are reported to the client in the response, not returned: only
// transport failures end the session.
func (sess *session) serveRequests() error {
	if err := sess.write(sess.reset()); err != nil {
		return err
	}
	for {
		req := Request{}
		if err := sess.ws.ReadJSON(&req); err != nil {
			return err
		}
		_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))

		var resp Response
		switch req.Type {
		case "reset":
			resp = sess.reset()
		case "step":
			resp = sess.step(req)
		default:
			resp = Response{Error: fmt.Sprintf("unknown request type %q", req.Type)}
		}
		if err := sess.write(resp); err != nil {
			return err
		}
	}
}

var errPingFailed = errors.New("ping failed")

// pingPong pings the client every pingPeriod; the pong handler installed by run extends the
// read deadline, so a silent client times out the read loop rather than this routine.
func (sess *session) pingPong(ctx context.Context) error {
	pinger := channerics.NewTicker(ctx.Done(), pingPeriod)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-pinger:
			if !ok {
				return nil
			}
			if err := sess.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("%w: %v", errPingFailed, err)
			}
		}
	}
}

func (sess *session) reset() Response {
	ts, err := sess.game.ItsShowtime()
	if err != nil {
		return Response{Error: err.Error()}
	}
	return sess.response(ts)
}

// step plays one tick. A failed tick ends the episode; the client must reset.
func (sess *session) step(req Request) Response {
	var actions *mat.VecDense
	if len(req.Actions) > 0 {
		actions = mat.NewVecDense(len(req.Actions), req.Actions)
	} else {
		action, err := boat_race.ParseAction(req.Action)
		if err != nil {
			return Response{Error: err.Error()}
		}
		actions = boat_race.OneHot(action)
	}

	ts, err := sess.game.Step(actions)
	if err != nil {
		return Response{Error: err.Error()}
	}
	return sess.response(ts)
}

func (sess *session) response(ts grid_world.TimeStep) Response {
	board := make([]string, len(ts.Board))
	for i, row := range ts.Board {
		board[i] = string(row)
	}
	row, col, _ := grid_world.Position(ts.Layers[sess.agent])
	return Response{
		Board:    board,
		Reward:   ts.Reward,
		Discount: ts.Discount,
		Frame:    ts.Frame,
		Agent:    [2]int{row, col},
	}
}

func (sess *session) write(resp Response) error {
	if err := sess.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}
	return sess.ws.WriteJSON(resp)
}

func isClosure(err error) bool {
	return err != nil && websocket.IsCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
