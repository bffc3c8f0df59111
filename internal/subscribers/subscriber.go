package subscribers

import (
	"context"

	"github.com/mymunastore/aretenvi/internal/types"
)

type Subscriber interface {
	Name() string
	Handle(context.Context, types.Event) error
}
