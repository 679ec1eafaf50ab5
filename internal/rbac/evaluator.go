package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ness-ot/ot2net/internal/auth"
)

// Evaluate reports whether role may perform action on resource under m. It
// is true iff at least one grant of role matches; an unknown role holds no
// grants and is denied.
func Evaluate(m *Matrix, role Role, resource string, action Action) bool {
	for _, g := range m.grants[role] {
		if g.Matches(resource, action) {
			return true
		}
	}
	return false
}

// EvaluatorOption configures the Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the logger used to report configuration defects.
func WithLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithEvaluatorMetrics records unknown-role lookups on m.
func WithEvaluatorMetrics(m *Metrics) EvaluatorOption {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// Evaluator answers role/resource/action questions against a Matrix.
type Evaluator struct {
	matrix  *Matrix
	logger  *slog.Logger
	metrics *Metrics
	warned  sync.Map // Role → struct{}
}

func NewEvaluator(matrix *Matrix, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		matrix: matrix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Matrix returns the matrix the evaluator reads from.
func (e *Evaluator) Matrix() *Matrix {
	return e.matrix
}

// Evaluate is the package-level Evaluate plus defect reporting: the first
// lookup of a role with no matrix entry is logged, and every such lookup is
// counted.
func (e *Evaluator) Evaluate(role Role, resource string, action Action) bool {
	if !e.matrix.Has(role) {
		e.reportUnknownRole(role)
		return false
	}
	return Evaluate(e.matrix, role, resource, action)
}

// Grants implements PolicyEngine.
func (e *Evaluator) Grants(role Role) []Grant {
	return e.matrix.Grants(role)
}

// Authorize implements PolicyEngine. It never returns an error; the signature
// leaves room for engines backed by a store.
func (e *Evaluator) Authorize(_ context.Context, identity *auth.Identity, resource string, action Action) (*Decision, error) {
	if identity == nil {
		return &Decision{Allowed: false, Reason: "no identity"}, nil
	}

	role := Role(identity.Role)
	if e.Evaluate(role, resource, action) {
		return &Decision{Allowed: true}, nil
	}

	return &Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("role %s has no grant for %s:%s", role, resource, action),
	}, nil
}

func (e *Evaluator) reportUnknownRole(role Role) {
	e.metrics.unknownRole()
	if _, seen := e.warned.LoadOrStore(role, struct{}{}); seen {
		return
	}
	e.logger.Warn("rbac: role has no matrix entry",
		"role", string(role),
		"error", ErrConfigurationDefect,
	)
}
