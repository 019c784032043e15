package rooms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/adixon02/AutoHVAC-sub002/blueprint"
	"github.com/adixon02/AutoHVAC-sub002/render"
	"github.com/adixon02/AutoHVAC-sub002/resilience"
	"github.com/adixon02/AutoHVAC-sub002/textract"
)

// VisionRequest is one prompt with a page image.
type VisionRequest struct {
	Model    string
	System   string
	Prompt   string
	ImagePNG []byte
}

// VisionClient sends a vision prompt and returns the model's text reply.
type VisionClient interface {
	Complete(ctx context.Context, req VisionRequest) (string, error)
}

// PageRenderer rasterizes a PDF page.
type PageRenderer interface {
	Render(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)
}

// VisionConfig tunes the AI strategy.
type VisionConfig struct {
	Client         VisionClient
	Renderer       PageRenderer
	Model          string
	DPI            int                 // default 150
	MaxImagePixels int                 // long edge, default 2048
	AttemptTimeout time.Duration       // default 60s
	MaxRetries     int                 // default 2; negative disables retries
	Backoff        time.Duration       // default 2s
	Breaker        *resilience.Breaker // optional, shared across jobs
	Logger         *slog.Logger
}

func (c *VisionConfig) defaults() {
	if c.DPI <= 0 {
		c.DPI = 150
	}
	if c.MaxImagePixels <= 0 {
		c.MaxImagePixels = 2048
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// VisionStrategy asks a vision model to read the rooms off the rendered
// page.
type VisionStrategy struct {
	cfg VisionConfig
}

// NewVision creates the AI strategy.
func NewVision(cfg VisionConfig) *VisionStrategy {
	cfg.defaults()
	return &VisionStrategy{cfg: cfg}
}

func (v *VisionStrategy) Name() string { return "ai" }

const systemPrompt = `You read residential architectural floor plans and report conditioned rooms for HVAC load calculation.
Answer with one JSON object and nothing else:
{"rooms":[{"name":string,"room_type":string,"width_ft":number,"length_ft":number,"area_sqft":number,"floor":integer,"windows":integer,"exterior_doors":integer,"exterior_walls":integer,"corner_room":boolean,"orientation":"N|NE|E|SE|S|SW|W|NW|unknown","center":{"x":number,"y":number},"confidence":number}]}
room_type is one of bedroom, bathroom, kitchen, living, dining, family, office, laundry, closet, hallway, entry, utility, garage, porch, other.
Only report what the drawing shows. Use "unknown" orientation when no north arrow is visible.`

// StructureRooms implements Strategy.
func (v *VisionStrategy) StructureRooms(ctx context.Context, in Input) ([]blueprint.Room, error) {
	if v.cfg.Client == nil {
		return nil, errors.New("rooms: ai: no vision client configured")
	}
	img, err := v.pageImage(ctx, in)
	if err != nil {
		return nil, err
	}
	png, err := render.EncodePNG(render.Fit(img, v.cfg.MaxImagePixels))
	if err != nil {
		return nil, err
	}
	req := VisionRequest{
		Model:    v.cfg.Model,
		System:   systemPrompt,
		Prompt:   userPrompt(in),
		ImagePNG: png,
	}

	mws := []resilience.Middleware[string]{
		resilience.WithRetry[string](v.cfg.MaxRetries, v.cfg.Backoff, v.cfg.Logger),
	}
	if v.cfg.Breaker != nil {
		mws = append(mws, resilience.WithBreaker[string](v.cfg.Breaker, "vision"))
	}
	mws = append(mws,
		resilience.WithTimeout[string](v.cfg.AttemptTimeout),
		resilience.Recovery[string](v.cfg.Logger),
	)
	reply, err := resilience.Do(ctx,
		func(ctx context.Context) (string, error) { return v.cfg.Client.Complete(ctx, req) },
		mws...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		attempts := 1
		var re *resilience.RetryError
		if errors.As(err, &re) {
			attempts = re.Attempts
		}
		return nil, &blueprint.ExternalServiceError{Service: "vision", Attempts: attempts, Cause: err}
	}

	rooms, warnings, err := ParseRooms(reply)
	for _, w := range warnings {
		v.cfg.Logger.WarnContext(ctx, "rooms: ai response", "warning", w)
	}
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

func (v *VisionStrategy) pageImage(ctx context.Context, in Input) (image.Image, error) {
	if v.cfg.Renderer != nil && in.PDFPath != "" {
		img, err := v.cfg.Renderer.Render(ctx, in.PDFPath, in.Page, v.cfg.DPI)
		if err == nil {
			return img, nil
		}
		v.cfg.Logger.WarnContext(ctx, "rooms: page render failed, drawing linework", "error", err)
	}
	if in.Geometry == nil {
		return nil, errors.New("rooms: ai: no page image available")
	}
	return render.Vector(in.Geometry.Elements, in.PageWidth, in.PageHeight, v.cfg.DPI), nil
}

func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d. ", in.Page)
	if in.PointsPerFoot > 0 {
		fmt.Fprintf(&b, "The confirmed drawing scale is %.3f PDF points per foot; use it for every dimension. ", in.PointsPerFoot)
	}
	var labels []string
	for _, s := range in.Spans {
		if s.Class == textract.ClassLabel {
			labels = append(labels, s.Text)
		}
	}
	if len(labels) > 0 {
		fmt.Fprintf(&b, "Room labels found in the text layer: %s. ", strings.Join(labels, "; "))
	}
	b.WriteString("List every conditioned room.")
	return b.String()
}

// OpenAIClient is the VisionClient backed by an OpenAI-compatible chat
// completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. An empty baseURL uses the OpenAI API.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete implements VisionClient.
func (c *OpenAIClient) Complete(ctx context.Context, req VisionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		MaxTokens:   4096,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.ImagePNG),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
			return "", resilience.Permanent(fmt.Errorf("rooms: openai: %w", err))
		}
		return "", fmt.Errorf("rooms: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("rooms: openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// num accepts a JSON number or a numeric string.
type num struct {
	v  float64
	ok bool
}

func (n *num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s, "sqft"), "ft"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	n.v, n.ok = v, true
	return nil
}

// flag accepts a JSON boolean or "yes"/"true" strings.
type flag struct {
	v, ok bool
}

func (f *flag) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(string(bytes.TrimSpace(b)), `"`)) {
	case "true", "yes", "1":
		f.v, f.ok = true, true
	case "false", "no", "0":
		f.ok = true
	}
	return nil
}

type rawRoom struct {
	Name          string `json:"name"`
	RoomType      string `json:"room_type"`
	WidthFt       num    `json:"width_ft"`
	LengthFt      num    `json:"length_ft"`
	AreaSqFt      num    `json:"area_sqft"`
	Floor         num    `json:"floor"`
	Windows       num    `json:"windows"`
	ExteriorDoors num    `json:"exterior_doors"`
	ExteriorWalls num    `json:"exterior_walls"`
	CornerRoom    flag   `json:"corner_room"`
	Orientation   string `json:"orientation"`
	Center        *struct {
		X num `json:"x"`
		Y num `json:"y"`
	} `json:"center"`
	Confidence num `json:"confidence"`
}

// ParseRooms extracts the JSON payload from a model reply and maps it to
// rooms. Missing fields get defaults with "default" provenance; rooms
// without a name or a usable area are dropped with a warning.
func ParseRooms(reply string) ([]blueprint.Room, []string, error) {
	payload, err := extractJSON(reply)
	if err != nil {
		return nil, nil, err
	}
	var raws []rawRoom
	var wrapped struct {
		Rooms []rawRoom `json:"rooms"`
	}
	if payload[0] == '[' {
		err = json.Unmarshal(payload, &raws)
	} else {
		err = json.Unmarshal(payload, &wrapped)
		raws = wrapped.Rooms
	}
	if err != nil {
		return nil, nil, fmt.Errorf("rooms: ai: malformed response: %w", err)
	}

	var warnings []string
	out := make([]blueprint.Room, 0, len(raws))
	for i, r := range raws {
		room, warn, ok := mapRoom(r)
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("room %d: %s", i+1, warn))
		}
		if ok {
			out = append(out, room)
		}
	}
	if len(out) == 0 {
		return nil, warnings, fmt.Errorf("rooms: ai: %w in response", ErrNoRooms)
	}
	return out, warnings, nil
}

func mapRoom(r rawRoom) (blueprint.Room, string, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return blueprint.Room{}, "dropped: no name", false
	}
	prov := map[string]blueprint.Provenance{}
	fc := map[string]float64{}
	conf := 0.5
	if r.Confidence.ok {
		conf = clamp(r.Confidence.v, 0, 1)
	}
	set := func(field string, from bool) {
		if from {
			prov[field], fc[field] = blueprint.AIInferred, conf
		} else {
			prov[field], fc[field] = blueprint.Defaulted, 0.2
		}
	}

	w, l := positive(r.WidthFt), positive(r.LengthFt)
	area := positive(r.AreaSqFt)
	warn := ""
	switch {
	case area == 0 && w > 0 && l > 0:
		area = w * l
	case area > 0 && w > 0 && l > 0 && math.Abs(w*l-area)/area > 0.1:
		warn = fmt.Sprintf("area %.1f disagrees with %.1fx%.1f; using dimensions", area, w, l)
		area = w * l
	}
	if area <= 0 {
		return blueprint.Room{}, fmt.Sprintf("dropped %q: no usable area", name), false
	}
	set("area", true)
	set("dimensions", w > 0 && l > 0)

	typ := blueprint.RoomType(strings.ToLower(strings.TrimSpace(r.RoomType)))
	if !validType(typ) {
		if t, ok := TypeFromName(name); ok {
			typ = t
		} else {
			typ = blueprint.Other
		}
	}

	floor := 1
	if r.Floor.ok && r.Floor.v >= 1 {
		floor = int(r.Floor.v)
	}
	set("floor", r.Floor.ok)

	orient := blueprint.ParseOrientation(r.Orientation)
	set("orientation", orient != blueprint.Unknown)

	var center blueprint.Point
	if r.Center != nil && r.Center.X.ok && r.Center.Y.ok {
		center = blueprint.Point{X: r.Center.X.v, Y: r.Center.Y.v}
	}
	set("center", r.Center != nil)
	set("windows", r.Windows.ok)
	set("exterior_walls", r.ExteriorWalls.ok)
	set("exterior_doors", r.ExteriorDoors.ok)

	ext := int(clamp(r.ExteriorWalls.v, 0, 4))
	corner := r.CornerRoom.v
	if !r.CornerRoom.ok {
		corner = ext >= 2
	}
	set("corner_room", r.CornerRoom.ok)
	return blueprint.Room{
		Name:             name,
		Type:             typ,
		WidthFt:          w,
		LengthFt:         l,
		AreaSqFt:         area,
		Floor:            floor,
		Windows:          int(clamp(r.Windows.v, 0, maxOpenings)),
		ExteriorDoors:    int(clamp(r.ExteriorDoors.v, 0, maxOpenings)),
		ExteriorWalls:    ext,
		CornerRoom:       corner,
		Orientation:      orient,
		Center:           center,
		Confidence:       conf,
		FieldConfidence:  fc,
		Provenance:       prov,
		DimensionsSource: blueprint.SourceAI,
	}, warn, true
}

// extractJSON finds the JSON object or array in a reply that may carry
// code fences or prose around it.
func extractJSON(s string) ([]byte, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errors.New("rooms: ai: no JSON in response")
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return nil, errors.New("rooms: ai: unterminated JSON in response")
	}
	return []byte(s[start : end+1]), nil
}

func positive(n num) float64 {
	if !n.ok || n.v <= 0 {
		return 0
	}
	return n.v
}

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

// maxOpenings caps model-reported window and door counts per room.
const maxOpenings = 50
