package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/scandash/scandash/internal/errors"
	"github.com/scandash/scandash/internal/logging"
)

// Engine wire constants.
const (
	apiKeyHeader = "X-ZAP-API-Key"

	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultSpiderChildren = 10
	defaultSpiderSettle   = 2 * time.Second

	maxResponseBytes = 10 * 1024 * 1024
)

// Engine-native state tokens, normalized via zapStates. Anything the map
// doesn't know becomes StateUnknown.
var zapStates = map[string]State{
	"RUNNING":  StateRunning,
	"PAUSED":   StatePaused,
	"FINISHED": StateCompleted,
	"STOPPED":  StateStopped,
}

// Engine risk levels, normalized via zapRisks. Unmapped values land in the
// info bucket rather than being dropped.
var zapRisks = map[string]Severity{
	"Critical":      SeverityCritical,
	"High":          SeverityHigh,
	"Medium":        SeverityMedium,
	"Low":           SeverityLow,
	"Informational": SeverityInfo,
}

// Engine confidence levels. Unmapped values land in the lowest bucket.
var zapConfidences = map[string]Confidence{
	"Confirmed": ConfidenceCertain,
	"High":      ConfidenceCertain,
	"Medium":    ConfidenceFirm,
	"Low":       ConfidenceTentative,
}

// Config holds engine adapter configuration.
type Config struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`

	// Connect and total-request timeouts are configured independently so
	// a stalled engine read cannot hold a reconciliation poll open past
	// RequestTimeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`

	// ProvisionContext controls whether Start creates a scoping context
	// before spidering. Context setup failures never fail the start.
	ProvisionContext bool `yaml:"provision_context" json:"provision_context"`

	// SpiderMaxChildren bounds reconnaissance depth per start request.
	SpiderMaxChildren int `yaml:"spider_max_children" json:"spider_max_children"`

	// SpiderSettle is how long Start waits after kicking off the spider
	// before requesting the active scan, giving the crawl a head start.
	SpiderSettle time.Duration `yaml:"spider_settle" json:"spider_settle"`
}

// DefaultConfig returns the default engine adapter configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8090",
		ConnectTimeout:    defaultConnectTimeout,
		RequestTimeout:    defaultRequestTimeout,
		ProvisionContext:  true,
		SpiderMaxChildren: defaultSpiderChildren,
		SpiderSettle:      defaultSpiderSettle,
	}
}

// ZAPAdapter talks to an OWASP ZAP engine over its JSON API. It is
// constructed explicitly and injected into the orchestrator; there is no
// package-level client or ambient configuration.
type ZAPAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	config  Config
	logger  *logging.Logger
}

var _ Adapter = (*ZAPAdapter)(nil)

// NewZAPAdapter creates an engine adapter from configuration.
func NewZAPAdapter(cfg Config, logger *logging.Logger) *ZAPAdapter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.SpiderMaxChildren <= 0 {
		cfg.SpiderMaxChildren = defaultSpiderChildren
	}
	if logger == nil {
		logger = logging.Default()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxIdleConns:        5,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &ZAPAdapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		logger:  logger.WithComponent("engine"),
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}
}

// Wire format types. The engine emits numbers as strings in some versions
// and as JSON numbers in others, so every field is held raw and read
// through a typed accessor with an explicit default.

type wireScanList struct {
	Scans []wireScan `json:"scans"`
}

type wireScan struct {
	ID       json.RawMessage `json:"id"`
	Name     json.RawMessage `json:"name"`
	State    json.RawMessage `json:"state"`
	Progress json.RawMessage `json:"progress"`
}

type wireAlertList struct {
	Alerts []wireAlert `json:"alerts"`
}

type wireAlert struct {
	ID          json.RawMessage `json:"id"`
	Name        json.RawMessage `json:"name"`
	Risk        json.RawMessage `json:"risk"`
	Confidence  json.RawMessage `json:"confidence"`
	URL         json.RawMessage `json:"url"`
	Description json.RawMessage `json:"description"`
	Solution    json.RawMessage `json:"solution"`
}

type wireStart struct {
	Scan json.RawMessage `json:"scan"`
}

// wireString reads a raw wire field as a string, tolerating both quoted
// and numeric encodings. Parse failures yield the default, never an error.
func wireString(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return def
}

// wireInt reads a raw wire field as an int with the same tolerance.
func wireInt(raw json.RawMessage, def int) int {
	s := wireString(raw, "")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// get performs one engine API call. Transport failures and timeouts map to
// ENGINE_UNAVAILABLE; a reachable engine answering non-2xx maps to
// ENGINE_REJECTED. A body that fails to decode is treated as no data, not
// as a failure.
func (z *ZAPAdapter) get(ctx context.Context, operation, path string, params url.Values, out interface{}) error {
	reqURL := z.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return errors.WrapEngineError(errors.CodeEngineUnavailable, "failed to build engine request", operation, err)
	}
	if z.apiKey != "" {
		req.Header.Set(apiKeyHeader, z.apiKey)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		return errors.WrapEngineError(errors.CodeEngineUnavailable, "engine request failed", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.WrapEngineError(errors.CodeEngineUnavailable, "failed to read engine response", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := errors.NewEngineError(errors.CodeEngineRejected,
			fmt.Sprintf("engine returned status %d", resp.StatusCode), operation)
		e.Status = resp.StatusCode
		return e
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			// Malformed body from a 2xx response is treated as an empty
			// payload; per-field defaults take over downstream.
			z.logger.WarnEngine("discarding malformed engine response", err, "operation", operation)
		}
	}
	return nil
}

// Start provisions an optional scoping context, kicks off reconnaissance
// spidering, then requests the active scan. One attempt only.
func (z *ZAPAdapter) Start(ctx context.Context, targetURL, scanName string) (*StartResult, error) {
	if z.config.ProvisionContext {
		z.provisionContext(ctx, targetURL, scanName)
	}

	spiderID, err := z.startSpider(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	// Give the spider a head start so the active scan has URLs to probe.
	if z.config.SpiderSettle > 0 {
		select {
		case <-ctx.Done():
			return nil, errors.WrapEngineError(errors.CodeEngineUnavailable,
				"start canceled while waiting for spider", "start", ctx.Err())
		case <-time.After(z.config.SpiderSettle):
		}
	}

	params := url.Values{}
	params.Set("url", targetURL)
	params.Set("recurse", "true")
	params.Set("inScopeOnly", "false")

	var started wireStart
	if err := z.get(ctx, "start_scan", "/JSON/ascan/action/scan/", params, &started); err != nil {
		return nil, err
	}

	engineScanID := wireString(started.Scan, "")
	result := &StartResult{
		EngineScanID: engineScanID,
		Accepted:     engineScanID != "",
		SpiderID:     spiderID,
	}

	z.logger.InfoEngine("engine scan started",
		"target", targetURL,
		"engine_scan_id", engineScanID,
		"spider_id", spiderID,
		"accepted", result.Accepted)
	return result, nil
}

// provisionContext creates a named scoping context and includes the target
// in it. Failures are logged and swallowed: the scan proceeds unscoped.
func (z *ZAPAdapter) provisionContext(ctx context.Context, targetURL, scanName string) {
	contextName := "ScanContext_" + strings.ReplaceAll(scanName, " ", "_")

	params := url.Values{}
	params.Set("contextName", contextName)
	if err := z.get(ctx, "new_context", "/JSON/context/action/newContext/", params, nil); err != nil {
		z.logger.WarnEngine("context setup failed, scanning unscoped", err, "context", contextName)
		return
	}

	params = url.Values{}
	params.Set("contextName", contextName)
	params.Set("regex", targetURL+".*")
	if err := z.get(ctx, "include_in_context", "/JSON/context/action/includeInContext/", params, nil); err != nil {
		z.logger.WarnEngine("context include failed, scanning unscoped", err, "context", contextName)
	}
}

// startSpider launches the reconnaissance crawl for the target.
func (z *ZAPAdapter) startSpider(ctx context.Context, targetURL string) (string, error) {
	params := url.Values{}
	params.Set("url", targetURL)
	params.Set("maxChildren", strconv.Itoa(z.config.SpiderMaxChildren))
	params.Set("recurse", "true")

	var started wireStart
	if err := z.get(ctx, "start_spider", "/JSON/spider/action/scan/", params, &started); err != nil {
		return "", err
	}
	return wireString(started.Scan, ""), nil
}

// ListScans returns every scan the engine reports.
func (z *ZAPAdapter) ListScans(ctx context.Context) ([]*Scan, error) {
	var list wireScanList
	if err := z.get(ctx, "list_scans", "/JSON/ascan/view/scans/", nil, &list); err != nil {
		return nil, err
	}

	scans := make([]*Scan, 0, len(list.Scans))
	for i := range list.Scans {
		scans = append(scans, normalizeScan(&list.Scans[i]))
	}
	return scans, nil
}

// normalizeScan maps one wire scan to the internal vocabulary.
func normalizeScan(w *wireScan) *Scan {
	return &Scan{
		EngineScanID: wireString(w.ID, ""),
		TargetURL:    wireString(w.Name, ""),
		State:        normalizeState(wireString(w.State, "")),
		Percent:      clampPercent(wireInt(w.Progress, 0)),
	}
}

// normalizeState maps an engine state token to the internal state enum.
func normalizeState(token string) State {
	if state, ok := zapStates[strings.ToUpper(token)]; ok {
		return state
	}
	return StateUnknown
}

// clampPercent bounds a progress value to [0,100].
func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ListIssues fetches the engine's alerts and normalizes them.
func (z *ZAPAdapter) ListIssues(ctx context.Context, filter IssueFilter) ([]*Issue, error) {
	var list wireAlertList
	if err := z.get(ctx, "list_issues", "/JSON/core/view/alerts/", nil, &list); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	issues := make([]*Issue, 0, len(list.Alerts))
	for i := range list.Alerts {
		issue := normalizeAlert(&list.Alerts[i], now)
		if filter.Matches(issue) {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// normalizeAlert maps one wire alert to an Issue. Unmapped risk levels
// normalize to info, unmapped confidences to tentative; nothing is dropped.
func normalizeAlert(w *wireAlert, observedAt time.Time) *Issue {
	severity, ok := zapRisks[wireString(w.Risk, "")]
	if !ok {
		severity = SeverityInfo
	}
	confidence, ok := zapConfidences[wireString(w.Confidence, "")]
	if !ok {
		confidence = ConfidenceTentative
	}

	return &Issue{
		ID:           wireString(w.ID, ""),
		Name:         wireString(w.Name, ""),
		Severity:     severity,
		Confidence:   confidence,
		URL:          wireString(w.URL, ""),
		Description:  wireString(w.Description, ""),
		Remediation:  wireString(w.Solution, "No remediation provided"),
		DiscoveredAt: observedAt,
	}
}

// Progress returns a snapshot for one engine scan, or a summary across all
// scans when engineScanID is empty.
func (z *ZAPAdapter) Progress(ctx context.Context, engineScanID string) (*Progress, error) {
	scans, err := z.ListScans(ctx)
	if err != nil {
		return nil, err
	}

	if engineScanID != "" {
		for _, scan := range scans {
			if scan.EngineScanID == engineScanID {
				return &Progress{
					EngineScanID: scan.EngineScanID,
					Percent:      scan.Percent,
					State:        scan.State,
				}, nil
			}
		}
		// The engine has no knowledge of this scan. Absence is not
		// evidence of failure; report a neutral snapshot.
		return &Progress{EngineScanID: engineScanID, Percent: 0, State: StateUnknown}, nil
	}

	return summarizeProgress(scans), nil
}

// summarizeProgress picks the most relevant scan out of the engine's
// listing: the most recently observed running scan wins; otherwise the
// most recently updated scan of any state; with nothing to report, a
// neutral snapshot. The engine appends scans to its listing in observation
// order, so "most recent" is the last matching entry.
func summarizeProgress(scans []*Scan) *Progress {
	var lastRunning *Scan
	for _, scan := range scans {
		if scan.State == StateRunning {
			lastRunning = scan
		}
	}
	if lastRunning != nil {
		return &Progress{
			EngineScanID: lastRunning.EngineScanID,
			Percent:      lastRunning.Percent,
			State:        StateRunning,
		}
	}

	if len(scans) > 0 {
		last := scans[len(scans)-1]
		return &Progress{
			EngineScanID: last.EngineScanID,
			Percent:      last.Percent,
			State:        last.State,
		}
	}

	return &Progress{Percent: 0, State: StateUnknown}
}

// Pause suspends a running engine scan.
func (z *ZAPAdapter) Pause(ctx context.Context, engineScanID string) error {
	return z.command(ctx, "pause_scan", "/JSON/ascan/action/pause/", engineScanID)
}

// Resume continues a paused engine scan.
func (z *ZAPAdapter) Resume(ctx context.Context, engineScanID string) error {
	return z.command(ctx, "resume_scan", "/JSON/ascan/action/resume/", engineScanID)
}

// Stop terminates an engine scan.
func (z *ZAPAdapter) Stop(ctx context.Context, engineScanID string) error {
	return z.command(ctx, "stop_scan", "/JSON/ascan/action/stop/", engineScanID)
}

func (z *ZAPAdapter) command(ctx context.Context, operation, path, engineScanID string) error {
	params := url.Values{}
	params.Set("scanId", engineScanID)
	return z.get(ctx, operation, path, params, nil)
}
