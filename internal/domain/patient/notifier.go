package patient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Messages shown to staff after intake and lookup.
const (
	MsgRegistered        = "patient registered"
	MsgSaveFailed        = "error saving patient"
	MsgDuplicateRecord   = "clinical record number already registered"
	MsgConfirmFailed     = "error retrieving patient data"
	MsgNotFound          = "patient not found"
	MsgLoadFailed        = "error loading patient data"
	MsgUpdated           = "patient updated"
	MsgDeleted           = "patient deleted"
	MsgInvalidSubmission = "please complete the required fields"
)

// Notifier delivers short success or error messages to whoever is operating
// the system.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}

// LogNotifier writes notifications to the request logger when one is on the
// context, otherwise to its own logger.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(ctx context.Context, msg string) {
	n.from(ctx).Info().Str("notification", "success").Msg(msg)
}

func (n *LogNotifier) Error(ctx context.Context, msg string) {
	n.from(ctx).Warn().Str("notification", "error").Msg(msg)
}

func (n *LogNotifier) from(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &n.logger
}

// WriterNotifier prints notifications as lines, for the command line.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Success(ctx context.Context, msg string) {
	n.print("ok", msg)
}

func (n *WriterNotifier) Error(ctx context.Context, msg string) {
	n.print("error", msg)
}

func (n *WriterNotifier) print(kind, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "[%s] %s\n", kind, msg)
}

type nopNotifier struct{}

func (nopNotifier) Success(context.Context, string) {}
func (nopNotifier) Error(context.Context, string)   {}
