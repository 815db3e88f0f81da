package emulator

import (
	"context"

	"github.com/tatianab/overworld-agent/internal/models"
)

// Local drives a Backend in-process, without a websocket in between.
type Local struct {
	Backend Backend
}

func (l Local) State(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return l.Backend.State()
}

func (l Local) Press(ctx context.Context, token models.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if token == models.TokenWait {
		return nil
	}
	return l.Backend.Press(token)
}
