package device

import (
	"github.com/andri/cardwallet/pkg/command"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/wallet"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Scratch buffer capacities.
const (
	SeedSize = 64
	KeySize  = 64
)

// Workflow is the strongly typed state of a running workflow.
type Workflow interface {
	Kind() flow.Kind
}

// Session is the single device session context. Exactly one exists per
// device and only the device loop mutates it.
type Session struct {
	ID      string
	Flow    *flow.FlowLevel
	Counter flow.Counter
	Phase   flow.Phase

	Wallet *wallet.Active
	// Seed and Key are crypto scratch for the running workflow.
	Seed *secret.Buffer
	Key  *secret.Buffer

	Workflow Workflow
	// ExternalTrigger is set when the host started the workflow.
	ExternalTrigger bool
	// AuthStage is the last completed device authentication stage. The
	// stages span several host commands, so it lives outside any workflow.
	AuthStage command.AuthStage

	Activity   *Activity
	resetGuard *atomic.Bool
}

// NewSession creates an idle session. guard is shared with the transport
// and gates host-initiated resets.
func NewSession(guard *atomic.Bool, activity *Activity) *Session {
	if guard == nil {
		guard = atomic.NewBool(false)
	}
	if activity == nil {
		activity = NewActivity(nil)
	}
	return &Session{
		Flow:       flow.NewFlowLevel(),
		Counter:    flow.NewCounter(),
		Phase:      flow.PhaseIdle,
		Wallet:     wallet.NewActive(),
		Seed:       secret.New(SeedSize),
		Key:        secret.New(KeySize),
		Activity:   activity,
		resetGuard: guard,
	}
}

// ResetGuard returns the flag shared with the transport.
func (s *Session) ResetGuard() *atomic.Bool {
	return s.resetGuard
}

// Begin binds w as the running workflow and enters the awaiting
// confirmation phase. It returns the new session id.
func (s *Session) Begin(w Workflow, external bool) string {
	s.ID = uuid.NewString()
	s.Workflow = w
	s.ExternalTrigger = external
	s.Phase = flow.PhaseAwaitingConfirmation
	s.Counter.Level = flow.LevelTwo
	s.Flow.ShowDesktopStartScreen = true
	s.Activity.MarkBusy()
	s.resetGuard.Store(true)
	return s.ID
}

// Activate moves an accepted session into its first controller step.
func (s *Session) Activate() {
	s.Phase = flow.PhaseActive
	s.Counter.Level = flow.LevelThree
	s.Flow.ShowDesktopStartScreen = false
}

// Armed reports whether a workflow holds the session lock.
func (s *Session) Armed() bool {
	return s.Phase == flow.PhaseAwaitingConfirmation || s.Phase == flow.PhaseActive
}

// Kind returns the running workflow kind.
func (s *Session) Kind() flow.Kind {
	if s.Workflow == nil {
		return flow.KindNone
	}
	return s.Workflow.Kind()
}

// Teardown returns the session to idle and erases every secret it holds.
// It cannot fail, touches memory only and is safe to call repeatedly.
func (s *Session) Teardown() {
	// 1. no host reset may race the local reset
	s.resetGuard.Store(false)

	// 2. external trigger and activity
	s.ExternalTrigger = false
	s.Activity.MarkIdle()

	// 3. pending step requests and any half-done authentication
	s.Counter.ClearFlags()
	s.AuthStage = 0

	// 4. flow level and screen buffers
	s.Flow.Reset()

	// 5. secrets
	s.Wallet.Wipe()
	s.Seed.Wipe()
	s.Key.Wipe()

	// 6. counter and phase
	s.Counter.Level = flow.LevelOne
	s.Phase = flow.PhaseIdle
	s.Workflow = nil
	s.ID = ""
}

// Pristine reports whether the session is in its post-teardown state.
func (s *Session) Pristine() bool {
	return s.Phase == flow.PhaseIdle &&
		s.Counter == flow.NewCounter() &&
		s.Flow.AtDefaults() &&
		s.Wallet.SecretsZero() && !s.Wallet.Bound() &&
		s.Seed.IsZero() && s.Key.IsZero() &&
		s.Workflow == nil && !s.ExternalTrigger && s.AuthStage == 0 &&
		!s.resetGuard.Load()
}
