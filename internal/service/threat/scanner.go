// Package threat flags suspicious request input with regex heuristics and
// keeps a ledger of callers that trip them repeatedly.
//
// The scanner is advisory. It never blocks a request; callers decide what,
// if anything, to do with the findings.
package threat

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"

	"go.uber.org/zap"
)

// maxDepth bounds recursion into nested request bodies
const maxDepth = 32

type family struct {
	threatType string
	label      string
	patterns   []*regexp.Regexp
}

// Scanner inspects requests for SQL injection and XSS patterns. Safe for
// concurrent use.
type Scanner struct {
	families []family
	ledger   *Ledger
	logger   *zap.Logger
}

// NewScanner compiles the configured pattern families
func NewScanner(cfg config.ThreatConfig, clk clock.Clock, logger *zap.Logger) (*Scanner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sql, err := compile(cfg.Patterns.SQLInjection)
	if err != nil {
		return nil, fmt.Errorf("invalid sql_injection pattern: %w", err)
	}
	xss, err := compile(cfg.Patterns.XSS)
	if err != nil {
		return nil, fmt.Errorf("invalid xss pattern: %w", err)
	}

	return &Scanner{
		families: []family{
			{threatType: domain.ThreatTypeSQLInjection, label: "SQL injection", patterns: sql},
			{threatType: domain.ThreatTypeXSS, label: "XSS", patterns: xss},
		},
		ledger: NewLedger(cfg, clk, logger),
		logger: logger,
	}, nil
}

// Inspect scans the URL and every string in the body. When issues are found
// and the caller is known, the event is recorded in the ledger.
func (s *Scanner) Inspect(req domain.InspectRequest) (findings domain.Findings) {
	findings = domain.Findings{Issues: []string{}, RiskLevel: domain.RiskLow}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Threat inspection panicked", zap.Any("panic", r))
		}
	}()

	types := make(map[string]bool)
	scan := func(value, location string) {
		for _, f := range s.families {
			for _, p := range f.patterns {
				if p.MatchString(value) {
					findings.Issues = append(findings.Issues, fmt.Sprintf("Potential %s in %s", f.label, location))
					types[f.threatType] = true
				}
			}
		}
	}

	if req.URL != "" {
		scan(decodeURL(req.URL), "URL")
	}
	walk(req.Body, "body", 0, scan)

	findings.HasIssues = len(findings.Issues) > 0
	findings.RiskLevel = riskFor(len(findings.Issues))

	if findings.HasIssues && req.Identifier != "" {
		s.ledger.Record(domain.ThreatEvent{
			Type:       threatType(types),
			RiskLevel:  findings.RiskLevel,
			Identifier: req.Identifier,
			Method:     req.Method,
			URL:        req.URL,
			Details:    findings.Issues,
		})
	}

	return findings
}

// Ledger returns the repeat-offender ledger
func (s *Scanner) Ledger() *Ledger {
	return s.ledger
}

// GetReport summarises the audit log
func (s *Scanner) GetReport() domain.ThreatReport {
	return s.ledger.Report()
}

// HealthCheck reports elevated when a caller has reached the repeat threshold
func (s *Scanner) HealthCheck() domain.ThreatHealth {
	return s.ledger.Health()
}

// Start begins the retention sweep
func (s *Scanner) Start(ctx context.Context) {
	s.ledger.Start(ctx)
}

// Stop halts the retention sweep
func (s *Scanner) Stop() {
	s.ledger.Stop()
}

func compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// walk visits every string leaf of a decoded JSON value. Other scalars are
// skipped.
func walk(value interface{}, location string, depth int, visit func(value, location string)) {
	if depth > maxDepth {
		return
	}

	switch v := value.(type) {
	case string:
		visit(v, location)
	case map[string]interface{}:
		for key, child := range v {
			walk(child, location+"."+key, depth+1, visit)
		}
	case map[string]string:
		for key, child := range v {
			visit(child, location+"."+key)
		}
	case []interface{}:
		for i, child := range v {
			walk(child, location+"["+strconv.Itoa(i)+"]", depth+1, visit)
		}
	case []string:
		for i, child := range v {
			visit(child, location+"["+strconv.Itoa(i)+"]")
		}
	}
}

func decodeURL(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func riskFor(issues int) domain.RiskLevel {
	switch {
	case issues == 0:
		return domain.RiskLow
	case issues <= 2:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

func threatType(types map[string]bool) string {
	switch {
	case types[domain.ThreatTypeSQLInjection] && types[domain.ThreatTypeXSS]:
		return domain.ThreatTypeMixed
	case types[domain.ThreatTypeXSS]:
		return domain.ThreatTypeXSS
	default:
		return domain.ThreatTypeSQLInjection
	}
}
