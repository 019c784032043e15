package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/adixon02/AutoHVAC-sub002/kit"
)

type jobIDRequest struct {
	JobID string `json:"job_id"`
}

type zipRequest struct {
	ZIP string `json:"zip"`
}

// RegisterMCPTools exposes the service as MCP tools: submit_blueprint_job,
// job_status, job_result, cancel_job and climate_lookup. Submitted PDFs
// must already be readable by the worker at pdf_path.
func RegisterMCPTools(srv *mcp.Server, svc *Service, logger *slog.Logger) {
	mw := func(name string) kit.Middleware { return kit.Logging(logger, name) }

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "submit_blueprint_job",
		Description: "Queue a blueprint PDF for room extraction and Manual J load calculation. Returns the job status.",
		InputSchema: kit.InputSchema(map[string]any{
			"pdf_path":       map[string]any{"type": "string", "description": "Path of the PDF on the worker host"},
			"zip":            map[string]any{"type": "string", "description": "US ZIP code of the building"},
			"project_label":  map[string]any{"type": "string"},
			"duct_config":    map[string]any{"type": "string", "enum": []string{"attic", "crawlspace", "basement", "conditioned", "ductless"}},
			"heating_fuel":   map[string]any{"type": "string", "enum": []string{"gas", "propane", "oil", "electric", "heat_pump"}},
			"vintage":        map[string]any{"type": "string", "enum": []string{"pre_1980", "1980_2000", "2000_2010", "post_2010", "high_performance"}},
			"scale_override": map[string]any{"type": "string", "description": `Scale such as 1/4"=1'-0"`},
			"page_override":  map[string]any{"type": "integer", "minimum": 1},
			"ai_enabled":     map[string]any{"type": "boolean"},
		}, []string{"pdf_path", "zip"}),
	}, kit.Chain(mw("submit_blueprint_job"))(func(ctx context.Context, req any) (any, error) {
		return svc.Submit(ctx, *req.(*Job))
	}), kit.DecodeJSON[Job]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "job_status",
		Description: "Report a job's stage, progress percent and error object.",
		InputSchema: kit.InputSchema(map[string]any{
			"job_id": map[string]any{"type": "string"},
		}, []string{"job_id"}),
	}, kit.Chain(mw("job_status"))(func(ctx context.Context, req any) (any, error) {
		return svc.Status(ctx, req.(*jobIDRequest).JobID)
	}), decodeJobID)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "job_result",
		Description: "Return the blueprint schema and load calculation of a completed job.",
		InputSchema: kit.InputSchema(map[string]any{
			"job_id": map[string]any{"type": "string"},
		}, []string{"job_id"}),
	}, kit.Chain(mw("job_result"))(func(ctx context.Context, req any) (any, error) {
		return svc.Result(ctx, req.(*jobIDRequest).JobID)
	}), decodeJobID)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Cancel a queued or running job. A running job stops at its next stage boundary.",
		InputSchema: kit.InputSchema(map[string]any{
			"job_id": map[string]any{"type": "string"},
		}, []string{"job_id"}),
	}, kit.Chain(mw("cancel_job"))(func(ctx context.Context, req any) (any, error) {
		return svc.Cancel(ctx, req.(*jobIDRequest).JobID)
	}), decodeJobID)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "climate_lookup",
		Description: "Return design temperatures, climate zone and moisture data for a US ZIP code.",
		InputSchema: kit.InputSchema(map[string]any{
			"zip": map[string]any{"type": "string"},
		}, []string{"zip"}),
	}, kit.Chain(mw("climate_lookup"))(func(ctx context.Context, req any) (any, error) {
		return svc.Climate(ctx, req.(*zipRequest).ZIP)
	}), kit.DecodeJSON[zipRequest]())
}

func decodeJobID(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	res, err := kit.DecodeJSON[jobIDRequest]()(req)
	if err != nil {
		return nil, err
	}
	id := res.Request.(*jobIDRequest).JobID
	if id == "" {
		return nil, fmt.Errorf("job_id is required")
	}
	res.EnrichCtx = func(ctx context.Context) context.Context { return kit.WithJobID(ctx, id) }
	return res, nil
}
