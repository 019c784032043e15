package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	expected := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(expected, ",") {
		t.Fatalf("order: got %v, want %v", order, expected)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	errFail := errors.New("fail")
	ep := Logging(logger, "job_status")(func(context.Context, any) (any, error) { return nil, errFail })

	ctx := WithJobID(WithTransport(context.Background(), "mcp"), "job_1")
	if _, err := ep(ctx, nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["op"] != "job_status" || line["transport"] != "mcp" || line["job_id"] != "job_1" {
		t.Fatalf("log line = %v", line)
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if v := GetTransport(ctx); v != "http" {
		t.Fatalf("default transport: got %q, want 'http'", v)
	}
	if GetJobID(ctx) != "" || GetRequestID(ctx) != "" || GetRemoteAddr(ctx) != "" {
		t.Fatal("non-empty defaults")
	}
	ctx = WithRemoteAddr(WithRequestID(ctx, "req_1"), "10.0.0.1")
	if GetRequestID(ctx) != "req_1" || GetRemoteAddr(ctx) != "10.0.0.1" {
		t.Fatal("values not stored")
	}
}

func TestDecodeJSON(t *testing.T) {
	type args struct {
		ZIP string `json:"zip"`
	}
	dec := DecodeJSON[args]()
	res, err := dec(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"zip":"97701"}`)}})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Request.(*args).ZIP; got != "97701" {
		t.Fatalf("zip = %q", got)
	}
	if _, err := dec(&mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`[`)}}); err == nil {
		t.Fatal("bad JSON accepted")
	}
}

func TestInputSchema(t *testing.T) {
	s := InputSchema(map[string]any{"zip": map[string]any{"type": "string"}}, []string{"zip"})
	if s["type"] != "object" || len(s["required"].([]string)) != 1 {
		t.Fatalf("schema = %v", s)
	}
	if _, ok := InputSchema(nil, nil)["required"]; ok {
		t.Fatal("empty required listed")
	}
}
