package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ness-ot/ot2net/internal/auth"
)

var tracer = otel.Tracer("ot2net/rbac")

// maxProjectScan bounds how far into a request body projeto_id is searched.
const maxProjectScan = 16 << 20

// MembershipChecker resolves whether a caller belongs to a project's team.
type MembershipChecker interface {
	IsProjectMember(ctx context.Context, identity *auth.Identity, projectID string) (bool, error)
}

// ProjectIDFromRequest resolves the project identifier from, in order, the
// "id" path value, the "projeto_id" field of a JSON body, and the
// "projeto_id" query parameter. The body is restored for later handlers.
func ProjectIDFromRequest(r *http.Request) (string, error) {
	if id := strings.TrimSpace(r.PathValue("id")); id != "" {
		return id, nil
	}

	id, err := projectIDFromBody(r)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	if id := strings.TrimSpace(r.URL.Query().Get("projeto_id")); id != "" {
		return id, nil
	}
	return "", ErrProjectIDRequired
}

// projectIDFromBody scans a JSON object body for a top-level projeto_id
// without buffering past it. Whatever was consumed is replayed ahead of the
// unread remainder, so later handlers see the body byte for byte.
func projectIDFromBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return "", nil
	}

	orig := r.Body
	var consumed bytes.Buffer
	defer func() {
		r.Body = replayBody{
			Reader: io.MultiReader(bytes.NewReader(consumed.Bytes()), orig),
			Closer: orig,
		}
	}()

	src := &readErrRecorder{r: orig}
	dec := json.NewDecoder(io.LimitReader(io.TeeReader(src, &consumed), maxProjectScan))
	id := scanProjectID(dec)
	if src.err != nil {
		return "", fmt.Errorf("reading request body: %w", src.err)
	}
	return id, nil
}

// scanProjectID walks the top-level keys of a JSON object. Non-JSON or
// non-object bodies simply carry no project id.
func scanProjectID(dec *json.Decoder) string {
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return ""
		}
		if key, _ := keyTok.(string); key != "projeto_id" {
			var skip json.RawMessage
			if dec.Decode(&skip) != nil {
				return ""
			}
			continue
		}

		var v any
		if dec.Decode(&v) != nil {
			return ""
		}
		switch v := v.(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return ""
		}
	}
	return ""
}

type replayBody struct {
	io.Reader
	io.Closer
}

// readErrRecorder keeps the first transport error so it is not mistaken for
// malformed JSON.
type readErrRecorder struct {
	r   io.Reader
	err error
}

func (e *readErrRecorder) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF && e.err == nil {
		e.err = err
	}
	return n, err
}

// RequireProjectAccess returns middleware that admits admins unconditionally
// and every other role only when it is a member of the requested project.
func RequireProjectAccess(checker MembershipChecker, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	mc := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				mc.metrics.decision(gateProject, outcomeUnauthenticated)
				writeUnauthenticated(w, mc.labels)
				return
			}

			if Role(identity.Role).IsAdmin() {
				mc.metrics.decision(gateProject, outcomeAllowed)
				next.ServeHTTP(w, r)
				return
			}

			projectID, err := ProjectIDFromRequest(r)
			switch {
			case errors.Is(err, ErrProjectIDRequired):
				mc.metrics.decision(gateProject, outcomeBadRequest)
				writeJSON(w, http.StatusBadRequest, map[string]string{
					"error": "Project ID required",
				})
				return
			case err != nil:
				mc.metrics.decision(gateProject, outcomeError)
				mc.logger.Error("rbac: resolving project id failed",
					"user_id", identity.UserID,
					"error", err,
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "authorization check failed",
				})
				return
			}

			member, err := mc.lookupMembership(r.Context(), checker, identity, projectID)
			if err != nil {
				mc.metrics.decision(gateProject, outcomeError)
				mc.logger.Error("rbac: membership lookup failed",
					"user_id", identity.UserID,
					"project_id", projectID,
					"error", err,
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "authorization check failed",
				})
				return
			}

			if !member {
				mc.metrics.decision(gateProject, outcomeDenied)
				mc.logger.Info("rbac: project access denied",
					"user_id", identity.UserID,
					"role", identity.Role,
					"project_id", projectID,
				)
				mc.auditDenial(r.Context(), identity, "projetos", map[string]any{
					"project_id": projectID,
					"reason":     "not a project member",
				})
				writeJSON(w, http.StatusForbidden, map[string]string{
					"error":   "Forbidden",
					"message": mc.labels.NotMember(),
				})
				return
			}

			mc.metrics.decision(gateProject, outcomeAllowed)
			next.ServeHTTP(w, r)
		})
	}
}

func (mc middlewareConfig) lookupMembership(ctx context.Context, checker MembershipChecker, identity *auth.Identity, projectID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "rbac.membership_lookup",
		trace.WithAttributes(
			attribute.String("ot2net.project_id", projectID),
			attribute.String("ot2net.role", identity.Role),
		),
	)
	defer span.End()

	started := time.Now()
	member, err := checker.IsProjectMember(ctx, identity, projectID)
	switch {
	case err != nil:
		mc.metrics.membershipLookup(outcomeError, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case member:
		mc.metrics.membershipLookup(outcomeAllowed, started)
	default:
		mc.metrics.membershipLookup(outcomeDenied, started)
	}
	span.SetAttributes(attribute.Bool("ot2net.member", member))
	return member, err
}
