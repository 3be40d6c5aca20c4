package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/chalkboard/internal/conversation"
	"github.com/MrWong99/chalkboard/internal/observe"
)

// frame is one server-to-client websocket message. Kind is a fragment kind
// or "done", which ends every turn.
type frame struct {
	Kind     string `json:"kind"`
	Text     string `json:"text,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Artifact string `json:"artifact,omitempty"`
}

const frameDone = "done"

// handleStream upgrades to a websocket and runs one streaming turn per
// client message. Each turn's fragments are written as they arrive and
// followed by a "done" frame.
//
// The session cookie must exist before the upgrade; a browser without one
// is given a session in the handshake response.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	e, id := s.sessions.Get(w, r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	log := observe.Logger(r.Context()).With("session", id)
	log.Debug("stream connected")

	ctx := r.Context()
	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Debug("stream read ended", "err", err)
			}
			return
		}

		msg := strings.TrimSpace(req.Message)
		if msg == "" {
			if err := writeFrames(ctx, conn, frame{Kind: conversation.FragmentError.String(), Text: "message is required"}, frame{Kind: frameDone}); err != nil {
				return
			}
			continue
		}

		if err := streamTurn(ctx, conn, e, msg); err != nil {
			log.Debug("stream write failed", "err", err)
			return
		}
	}
}

// streamTurn forwards the fragments of one turn. A failed write stops the
// turn; the engine records what it has and drains the rest.
func streamTurn(ctx context.Context, conn *websocket.Conn, e *conversation.Engine, msg string) error {
	var writeErr error
	for f := range e.SubmitStream(ctx, msg) {
		fr := frame{Kind: f.Kind.String(), Text: f.Text, Tool: f.Tool, Artifact: diagramURL(f.Artifact)}
		if writeErr = wsjson.Write(ctx, conn, fr); writeErr != nil {
			break
		}
	}
	if writeErr != nil {
		return writeErr
	}
	return wsjson.Write(ctx, conn, frame{Kind: frameDone})
}

func writeFrames(ctx context.Context, conn *websocket.Conn, frames ...frame) error {
	for _, f := range frames {
		if err := wsjson.Write(ctx, conn, f); err != nil {
			return err
		}
	}
	return nil
}
