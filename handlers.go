package enginebridge

import (
	"context"
	stderrors "errors"
	"reflect"
	"runtime"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/enginebridge-go/internal/errors"
	"github.com/wagiedev/enginebridge-go/internal/schema"
)

// Schema is a JSON Schema object for payload validation.
type Schema = jsonschema.Schema

// HandleRequest claims requests with topic id, decoding their payload into
// Req and answering with fn's result.
//
// fn's ctx is canceled when the sender abandons the request or the bridge
// closes. Returning an error rejects the request; returning ctx.Err() after
// cancellation completes it as canceled.
//
// The payload is validated against a schema inferred from Req before fn
// runs; a mismatch is rejected without calling fn. fn runs on its own
// goroutine, which Close waits for.
//
// Example:
//
//	type spawnRequest struct {
//	    Prefab string  `json:"prefab"`
//	    X      float64 `json:"x"`
//	}
//
//	_, err := enginebridge.HandleRequest(bridge, "spawn",
//	    func(ctx context.Context, req *spawnRequest) (string, error) {
//	        return world.Spawn(ctx, req.Prefab, req.X)
//	    },
//	)
func HandleRequest[Req, Resp any](
	b Bridge,
	id string,
	fn func(ctx context.Context, req *Req) (Resp, error),
) (Token, error) {
	v, err := schema.For[Req]()
	if err != nil {
		return "", err
	}

	return handleRequest(b, id, v, fn), nil
}

// HandleRequestWithSchema is HandleRequest with an explicit payload schema.
// Use SimpleSchema for flat objects.
func HandleRequestWithSchema[Req, Resp any](
	b Bridge,
	id string,
	s *Schema,
	fn func(ctx context.Context, req *Req) (Resp, error),
) (Token, error) {
	v, err := schema.New(s)
	if err != nil {
		return "", err
	}

	return handleRequest(b, id, v, fn), nil
}

func handleRequest[Req, Resp any](
	b Bridge,
	id string,
	v *schema.Validator,
	fn func(ctx context.Context, req *Req) (Resp, error),
) Token {
	member, file, line := funcOrigin(fn)

	return b.OnRequest(id, func(h *Handler) bool {
		env := h.Envelope()

		if err := v.Validate(env.Payload); err != nil {
			_ = h.Reject(err)

			return true
		}

		req := new(Req)
		if err := h.Decode(req); err != nil {
			_ = h.Reject(err)

			return true
		}

		deferral := h.Defer()

		goTracked(b, func() {
			defer deferral.Release()

			resp, err := fn(h.Context(), req)
			if err == nil {
				_ = h.Respond(resp)

				return
			}

			// Release sends Canceled for a request abandoned by its sender
			if h.IsCanceled() && stderrors.Is(err, context.Canceled) {
				return
			}

			reqErr, ok := stderrors.AsType[*errors.RequestError](err)
			if !ok {
				reqErr = &errors.RequestError{Message: err.Error(), Err: err}
			}

			if reqErr.OriginMember == "" && reqErr.OriginFile == "" {
				reqErr.OriginMember, reqErr.OriginFile, reqErr.OriginLine = member, file, line
			}

			_ = h.Reject(reqErr)
		})

		return true
	})
}

// HandleMessage delivers messages with topic id to fn, decoded into T.
// Messages whose payload does not decode are skipped.
func HandleMessage[T any](b Bridge, id string, fn func(ctx context.Context, msg T)) Token {
	return b.OnMessage(id, func(h *Handler) {
		var msg T
		if err := h.Decode(&msg); err != nil {
			return
		}

		fn(h.Context(), msg)
	})
}

// Call sends a request and decodes the reply payload into Resp.
func Call[Resp any](ctx context.Context, b Bridge, id string, payload any) (Resp, error) {
	var resp Resp

	reply, err := b.SendRequest(ctx, id, payload)
	if err != nil {
		return resp, err
	}

	if err := reply.Decode(&resp); err != nil {
		return resp, err
	}

	return resp, nil
}

// SimpleSchema creates a jsonschema.Schema from a simple type map.
//
// Input format: {"a": "float64", "b": "string"}
//
// Type mappings:
//   - "string"           → {"type": "string"}
//   - "int", "int64"     → {"type": "integer"}
//   - "float64", "float" → {"type": "number"}
//   - "bool"             → {"type": "boolean"}
//   - "[]string"         → {"type": "array", "items": {"type": "string"}}
//   - "any", "object"    → {"type": "object"}
func SimpleSchema(props map[string]string) *Schema {
	return schema.SimpleSchema(props)
}

// funcOrigin returns the name and source position of fn.
func funcOrigin(fn any) (member, file string, line int) {
	pc := reflect.ValueOf(fn).Pointer()

	f := runtime.FuncForPC(pc)
	if f == nil {
		return "", "", 0
	}

	file, line = f.FileLine(pc)

	return f.Name(), file, line
}
